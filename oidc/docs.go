// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

/*
oidc is a package for writing relying parties which authenticate users with
the OpenID Connect implicit flow.

Primary types provided by the package

* Config: the relying party's issuer, client id, redirect URI, scopes,
response type ("id_token token", "id_token" or "token") and display mode
("page" or "popup").

* Client: drives the authorization round trip, validates the provider's
callback response, holds the session and persists it across restarts and
between clients sharing storage.  The host environment is supplied as
Adapters: an HTTP adapter, the Location and Window of the relying party and
two storage compartments.

* Session: the validated tokens, their claims and the user's info.  A session
is either empty or the complete result of a validated callback.

* NonceManager and Destination: the single in-flight nonce bound to an
authorization request, and the path to return the user to after the
callback.

* Bus: publishes the "authenticated" and "not-authenticated" events.

Callback validation

A callback response is checked in order, stopping at the first failure: key
material must be prepared (see Client.PrepareAuthorization), the access token
and the id token required by the response type are validated along with their
claims, the id token's nonce must hash to the issued nonce and, for the
"id_token token" response type, the at_hash claim must match the access
token.  Only then does the response replace the session.

Session persistence

The session is encrypted with a fresh secret on every Serialize.  The
ciphertext goes to the durable compartment and the secret to the volatile
compartment, expiring with the session's expires_in.  Once the secret is
gone the session can't be restored.

Testing

TestProvider implements the provider side of the implicit flow, and
TestLocation and TestWindow stand in for the host.
*/
package oidc
