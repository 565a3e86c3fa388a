// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package mhl

import "strconv"

// Mode is the CBUS link mode. It only advances along
//
//	NoConnection
//	VersionPending
//	PeerIsLegacy | PeerIsV3
//	TransitionalS -> TransitionalSCalibrated -> ECBUSS
//	TransitionalD -> TransitionalDCalibrated -> ECBUSD
//
// and regresses from anywhere straight to NoConnection.
type Mode uint8

const (
	NoConnection Mode = iota
	VersionPending
	PeerIsLegacy
	PeerIsV3
	TransitionalS
	TransitionalSCalibrated
	TransitionalD
	TransitionalDCalibrated
	ECBUSS
	ECBUSD
)

var modeNames = []string{
	NoConnection:            "no-connection",
	VersionPending:          "version-pending",
	PeerIsLegacy:            "peer-is-legacy",
	PeerIsV3:                "peer-is-v3",
	TransitionalS:           "transitional-ecbus-s",
	TransitionalSCalibrated: "transitional-ecbus-s-calibrated",
	TransitionalD:           "transitional-ecbus-d",
	TransitionalDCalibrated: "transitional-ecbus-d-calibrated",
	ECBUSS:                  "ecbus-s",
	ECBUSD:                  "ecbus-d",
}

func (m Mode) String() string {
	if int(m) < len(modeNames) {
		return modeNames[m]
	}
	return "mode(" + strconv.Itoa(int(m)) + ")"
}

var modeNext = map[Mode][]Mode{
	NoConnection:            {VersionPending},
	VersionPending:          {PeerIsLegacy, PeerIsV3},
	PeerIsV3:                {TransitionalS, TransitionalD},
	TransitionalS:           {TransitionalSCalibrated},
	TransitionalSCalibrated: {ECBUSS},
	TransitionalD:           {TransitionalDCalibrated},
	TransitionalDCalibrated: {ECBUSD},
}

// CanAdvance reports whether from -> to is a legal single step.
func CanAdvance(from, to Mode) bool {
	if to == NoConnection || from == to {
		return true
	}
	for _, m := range modeNext[from] {
		if m == to {
			return true
		}
	}
	return false
}

// Connected reports whether a CBUS link exists.
func (m Mode) Connected() bool { return m != NoConnection }

// Escalated reports whether the peer is MHL3 or the link is on its way to
// or in eCBUS.
func (m Mode) Escalated() bool { return m >= PeerIsV3 }

func (m Mode) Transitional() bool {
	return m >= TransitionalS && m <= TransitionalDCalibrated
}

func (m Mode) ECBUS() bool { return m == ECBUSS || m == ECBUSD }

// SpeedD reports whether the mode is on the eCBUS-D path.
func (m Mode) SpeedD() bool {
	return m == TransitionalD || m == TransitionalDCalibrated || m == ECBUSD
}

// Speed of an eCBUS escalation.
type Speed uint8

const (
	SpeedS Speed = iota
	SpeedD
)

func (s Speed) String() string {
	if s == SpeedD {
		return "d"
	}
	return "s"
}
