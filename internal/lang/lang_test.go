// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package lang

import "testing"

var hello = Alt{
	EnUS: "hello",
	FrFR: "bonjour",
	JaJP: "こんにちは",
}

func Test(t *testing.T) {
	defer func(s string) { Lang = s }(Lang)
	for lang, expect := range hello {
		Lang = lang
		if s := hello.String(); s != expect {
			t.Errorf("%q != %q", s, expect)
		}
	}
	Lang = DeDE
	if s := hello.String(); s != "hello" {
		t.Error("wrong:", s)
	}
	Default = FrFR
	defer func() { Default = EnUS }()
	if s := hello.String(); s != "bonjour" {
		t.Error("wrong:", s)
	}
	if s := (Alt{}).String(); s != "" {
		t.Error("wrong:", s)
	}
}
