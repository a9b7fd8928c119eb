// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

package id

import (
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	// 16 random bytes are 22 unpadded base64url characters
	const idLen = 22
	type args struct {
		prefix string
	}
	tests := []struct {
		name    string
		args    args
		wantErr bool
		wantLen int
	}{
		{
			name: "valid",
			args: args{
				prefix: "n",
			},
			wantErr: false,
			wantLen: idLen + len("n_"),
		},
		{
			name: "no-prefix",
			args: args{
				prefix: "",
			},
			wantErr: false,
			wantLen: idLen,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := New(tt.args.prefix)
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && tt.args.prefix != "" && !strings.HasPrefix(got, tt.args.prefix+"_") {
				t.Errorf("New() = %v, wanted it to start with %v", got, tt.args.prefix)
			}
			if len(got) != tt.wantLen {
				t.Errorf("New() = %v, with len of %d and wanted len of %v", got, len(got), tt.wantLen)
			}
			if strings.ContainsAny(got, "+/=") {
				t.Errorf("New() = %v, wanted url safe characters only", got)
			}
		})
	}
	t.Run("unique", func(t *testing.T) {
		a, err := New("")
		if err != nil {
			t.Fatal(err)
		}
		b, err := New("")
		if err != nil {
			t.Fatal(err)
		}
		if a == b {
			t.Errorf("New() returned %v twice", a)
		}
	})
}
