// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package mhl

// MSC commands
const (
	MscWriteStat   = 0x60 // also SET_INT
	MscReadDevcap  = 0x61
	MscMsg         = 0x68
	MscWriteBurst  = 0x6c
	MscWriteXstat  = 0x70
	MscReadXDevcap = 0x71
)

// MSC_MSG sub-commands
const (
	MsgRCP         = 0x10
	MsgRCPK        = 0x11
	MsgRCPE        = 0x12
	MsgRAP         = 0x20
	MsgRAPK        = 0x21
	MsgUCP         = 0x30
	MsgUCPK        = 0x31
	MsgUCPE        = 0x32
	MsgBISTTrigger = 0x60
	MsgBISTReqStat = 0x61
	MsgBISTReady   = 0x62
	MsgBISTStop    = 0x63
)

// RCPE and UCPE status codes
const (
	RCPENoError     = 0x00
	RCPEIneffective = 0x01
	RCPEBusy        = 0x02
	UCPEIneffective = 0x01
)

// RAP actions and RAPK codes
const (
	RAPPoll       = 0x00
	RAPContentOn  = 0x10
	RAPContentOff = 0x11
	RAPCbusDown   = 0x20
	RAPCbusUp     = 0x21

	RAPKNoError      = 0x00
	RAPKUnrecognized = 0x01
	RAPKUnsupported  = 0x02
	RAPKBusy         = 0x03
)

// DEVCAP offsets; XDEVCAP registers start at XDevcapBase.
const (
	DevcapSize = 16

	DevcapDevState    = 0x00
	DevcapMHLVersion  = 0x01
	DevcapDevCat      = 0x02
	DevcapAdopterIDH  = 0x03
	DevcapAdopterIDL  = 0x04
	DevcapVidLinkMode = 0x05
	DevcapAudLinkMode = 0x06
	DevcapVideoType   = 0x07
	DevcapLogDevMap   = 0x08
	DevcapBandwidth   = 0x09
	DevcapFeatureFlag = 0x0a
	DevcapDeviceIDH   = 0x0b
	DevcapDeviceIDL   = 0x0c
	DevcapScratchpad  = 0x0d
	DevcapIntStatSize = 0x0e

	XDevcapBase        = 0x80
	XDevcapECBUSSpeeds = 0x00
	XDevcapTMDSSpeeds  = 0x01
	XDevcapDevRoles    = 0x02
	XDevcapLogDevMapX  = 0x03
)

// DevcapVidLinkMode
const VidLinkSuppPPixel = 1 << 3

// DevcapFeatureFlag
const (
	FeatureRCP     = 1 << 0
	FeatureRAP     = 1 << 1
	FeatureSP      = 1 << 2
	FeatureUCPSend = 1 << 3
	FeatureUCPRecv = 1 << 4
)

// XDevcapECBUSSpeeds
const (
	ECBUSS075   = 1 << 0
	ECBUSS8Bit  = 1 << 1
	ECBUSS12Bit = 1 << 2
	ECBUSD150   = 1 << 4
	ECBUSD8Bit  = 1 << 5
)

// MHL version at or above which the peer is MHL3.
const MHLVersion3 = 0x30

// Interrupt and status register offsets in the peer's MSC space.
const (
	RchangeInt = 0x20
	DchangeInt = 0x21

	StatConnectedRdy = 0x30
	StatLinkMode     = 0x31
	StatVersion      = 0x32

	XstatCurrECBUSMode = 0x90
	XstatAVLinkStatus  = 0x91
	XstatAVLinkControl = 0x92
	XstatMultiSink     = 0x93
)

// RCHANGE_INT
const (
	RchangeDcapChg      = 1 << 0
	RchangeDscrChg      = 1 << 1
	RchangeReqWrt       = 1 << 2
	RchangeGrtWrt       = 1 << 3
	Rchange3DReq        = 1 << 4
	RchangeFeatReq      = 1 << 5
	RchangeFeatComplete = 1 << 6
)

// DCHANGE_INT
const DchangeEDIDChg = 1 << 1

// CONNECTED_RDY
const (
	ConnRdyDcapRdy     = 1 << 0
	ConnRdyXDevcapSupp = 1 << 1
)

// LINK_MODE
const (
	LinkModeClkMask   = 0x07
	LinkModeClkNormal = 0x03
	LinkModeClkPacked = 0x02
	LinkModePathEn    = 1 << 3
	LinkModeMuted     = 1 << 4
)

// XSTAT CURR_ECBUS_MODE
const (
	XstatECBUSS = 0x01
	XstatECBUSD = 0x02
)

// Scratchpad offset and size for WRITE_BURST.
const (
	ScratchpadOffset = 0x40
	ScratchpadSize   = 16
)

// EDID
const (
	EDIDBlockSize = 128
	EDIDExtCount  = 126
	EDIDMaxBlocks = 4
)

var edidHeader = [8]byte{0x00, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0x00}

// The transmitter's own capability registers.
var localDevcap = [DevcapSize]byte{
	DevcapDevState:    0x00,
	DevcapMHLVersion:  0x32,
	DevcapDevCat:      0x02 | 0x10,
	DevcapAdopterIDH:  0x01,
	DevcapAdopterIDL:  0x42,
	DevcapVidLinkMode: 0x3f,
	DevcapAudLinkMode: 0x03,
	DevcapLogDevMap:   0x41,
	DevcapBandwidth:   0x0f,
	DevcapFeatureFlag: FeatureRCP | FeatureRAP | FeatureSP |
		FeatureUCPSend | FeatureUCPRecv,
	DevcapDeviceIDH:   0x86,
	DevcapDeviceIDL:   0x20,
	DevcapScratchpad:  ScratchpadSize,
	DevcapIntStatSize: 0x33,
}

var localXDevcap = [DevcapSize]byte{
	XDevcapECBUSSpeeds: ECBUSS075 | ECBUSD150,
	XDevcapTMDSSpeeds:  0x0f,
	XDevcapDevRoles:    0x01,
	XDevcapLogDevMapX:  0x01,
}

// RCP key codes, less the release bit, that the transmitter accepts.
var rcpSupported = func() (keys [0x80]bool) {
	for _, r := range [][2]int{
		{0x00, 0x0d}, {0x20, 0x2b}, {0x30, 0x30}, {0x32, 0x33},
		{0x35, 0x35}, {0x37, 0x37}, {0x40, 0x4c}, {0x50, 0x50},
		{0x60, 0x69}, {0x71, 0x75},
	} {
		for k := r[0]; k <= r[1]; k++ {
			keys[k] = true
		}
	}
	return
}()
