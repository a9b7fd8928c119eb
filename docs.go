// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

// anvilconnect provides the client side of the OpenID Connect implicit flow
// for relying parties which run in a user agent, plus a CLI which hosts one
// on the command line.
//
// oidc: the relying party client.  It builds authorization requests, sends
// the user to the provider in the window or a popup, validates the
// callback's tokens, persists the session and shares it with every client
// using the same storage.
//
// jwt: key sets and the stores which prepare them, used to verify the
// signatures of ID and access tokens.
//
// storage: durable and volatile key/value compartments, in memory, on disk
// or in Redis.
//
// cmd/anvil-connect: a CLI which signs in with the browser and a loopback
// callback server.
package anvilconnect
