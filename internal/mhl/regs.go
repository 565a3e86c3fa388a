// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package mhl

import "github.com/platinasystems/mhl/internal/regbus"

type reg = regbus.Reg

// Page 0: identification, system status and legacy interrupts.
const (
	RegVndIDL   reg = 0x0000
	RegVndIDH   reg = 0x0001
	RegDevIDL   reg = 0x0002
	RegDevIDH   reg = 0x0003
	RegDevRev   reg = 0x0004
	RegSysCtrl1 reg = 0x0008
	RegSysStat  reg = 0x0009
	RegDPD      reg = 0x000b
	RegTmdsCtl  reg = 0x001a
	RegVidMode  reg = 0x001c

	RegIntr1     reg = 0x0071
	RegIntr5     reg = 0x0074
	RegIntr1Mask reg = 0x0075
	RegIntr5Mask reg = 0x0078

	RegDdcIntr      reg = 0x00c0
	RegDdcIntrMask  reg = 0x00c1
	RegInfrIntr     reg = 0x00c4
	RegInfrIntrMask reg = 0x00c5
	RegInfrStat     reg = 0x00c6

	// three bytes, one group bit per interrupt source
	RegFastIntrStat reg = 0x00d0

	RegIntr9     reg = 0x00e0
	RegIntr9Mask reg = 0x00e4
)

// Page 1: TPI, output mute and HDCP 1.x.
const (
	RegTpiSC         reg = 0x011a
	RegTpiCopyStat   reg = 0x0129
	RegTpiHdcpStat   reg = 0x012a
	RegTpiHdcpCtl    reg = 0x012b
	RegTpiBcaps      reg = 0x012c
	RegTpiIntrSt0    reg = 0x013d
	RegTpiIntrEn     reg = 0x013c
	RegTpiHdcpDiag   reg = 0x0130
	RegTpiBksv       reg = 0x0136
	RegTpiAuthErrCnt reg = 0x0131
)

// Page 2: the shared fetch FIFO and BIST.
const (
	RegEdidCtl        reg = 0x0210
	RegEdidFifoAddr   reg = 0x0211
	RegEdidFifoWrData reg = 0x0212
	RegEdidFifoRdData reg = 0x0213
	RegEdidBlock      reg = 0x0214
	RegEdidStart      reg = 0x0215

	RegBistCtl        reg = 0x0240
	RegBistECBUSPat   reg = 0x0241
	RegBistECBUSFixed reg = 0x0242 // 2 bytes
	RegBistAVPat      reg = 0x0244
	RegBistAVRate     reg = 0x0245
	RegBistAVFixed    reg = 0x0246 // 2 bytes
	RegBistAVRand     reg = 0x0248
	RegBistImpMode    reg = 0x0249
	RegBistECBUSErr   reg = 0x024a // 2 bytes
	RegBistAVErr      reg = 0x024c // 2 bytes
	RegBistIntr       reg = 0x0250
	RegBistIntrMask   reg = 0x0251
)

// Page 3: HDCP 2.x.
const (
	RegHdcp2xCtrl0      reg = 0x0300
	RegHdcp2xStreamType reg = 0x0301
	RegHdcp2xCaps       reg = 0x0302
	RegHdcp2xStat       reg = 0x0303
	RegHdcp2xErr        reg = 0x0304
	RegHdcp2xState      reg = 0x0305
	RegHdcp2xRcvIDCount reg = 0x0310
	RegHdcp2xRcvIDFifo  reg = 0x0311
	RegHdcp2xIntr0      reg = 0x0320
	RegHdcp2xIntr0Mask  reg = 0x0321
)

// Page 4: eCBUS electrical, calibration and time division.
const (
	RegTxZoneCtl1  reg = 0x0400
	RegTxSwingCtl  reg = 0x0401
	RegCocCtl0     reg = 0x0410
	RegCocStat0    reg = 0x0411
	RegCocIntr     reg = 0x0418
	RegCocIntrMask reg = 0x0419
	RegTdmCtl      reg = 0x0420
	RegTdmVC0Slots reg = 0x0421
	RegTdmVC1Slots reg = 0x0422
	RegTdmVC2Slots reg = 0x0423
	RegTdmStat     reg = 0x0424
	RegTrxIntH     reg = 0x0428
	RegTrxIntHMask reg = 0x0429
)

// Page 5: CBUS discovery, MSC commands and peer status.
const (
	RegDiscCtl1          reg = 0x0510
	RegDiscStat2         reg = 0x0513
	RegCbusDiscIntr0     reg = 0x0518
	RegCbusDiscIntr0Mask reg = 0x0519

	RegCbusStatus    reg = 0x0520
	RegCbusInt0      reg = 0x0522
	RegCbusInt0Mask  reg = 0x0523
	RegCbusInt1      reg = 0x0524
	RegCbusInt1Mask  reg = 0x0525
	RegMscCmd        reg = 0x0530
	RegMscOffset     reg = 0x0531
	RegMscData       reg = 0x0532 // 2 bytes
	RegMscStart      reg = 0x0534
	RegMscWbFifo     reg = 0x0535
	RegMscMsgRcv     reg = 0x0538 // 2 bytes
	RegMscErr        reg = 0x053a
	RegMdtIntr0      reg = 0x0540
	RegMdtIntr0Mask  reg = 0x0541
	RegMdtRcvFifo    reg = 0x0542
	RegCbusXstatIntr reg = 0x0548
	RegCbusXstatMask reg = 0x0549
	RegXstatRcv      reg = 0x054a // 2 bytes

	// peer SET_INT and WRITE_STAT shadows, 4 bytes each
	RegPeerInt  reg = 0x05a0
	RegPeerStat reg = 0x05b0
)

// Page 6: eMSC.
const (
	RegEmscCtl      reg = 0x0600
	RegEmscRxCount  reg = 0x0602 // 2 bytes, little endian
	RegEmscRxFifo   reg = 0x0604
	RegEmscTxFifo   reg = 0x0606
	RegEmscTxStart  reg = 0x0607
	RegEmscIntr     reg = 0x0610
	RegEmscIntrMask reg = 0x0611
)

// RegSysStat
const (
	SysStatSCDT = 1 << 0
	SysStatHPD  = 1 << 1
	SysStatRSEN = 1 << 2
)

// RegSysCtrl1
const SysCtrl1TxPower = 1 << 0

// RegTmdsCtl
const TmdsCtlOutEn = 1 << 4

// RegVidMode
const VidModePacked = 1 << 3

// RegIntr1, RegIntr5, RegIntr9
const (
	Intr1RSENChg = 1 << 5

	Intr5SCDTChg = 1 << 0

	Intr9DevcapDone = 1 << 4
	Intr9EDIDDone   = 1 << 5
	Intr9FetchErr   = 1 << 6
)

// RegDdcIntr, RegInfrIntr
const (
	DdcIntrErr  = 1 << 0
	InfrIntrChg = 1 << 0
)

// RegTpiSC
const (
	TpiSCAVMute  = 1 << 3
	TpiSCTMDSOff = 1 << 4
)

// RegTpiCopyStat protection levels
const (
	CopyStatMask     = 0x03
	CopyStatNone     = 0x00
	CopyStatLocal    = 0x01
	CopyStatExtended = 0x03
)

// RegTpiHdcpStat link status
const (
	LinkStatMask      = 0x30
	LinkStatNormal    = 0x00
	LinkStatLost      = 0x10
	LinkStatReneg     = 0x20
	LinkStatSuspended = 0x30
)

// RegTpiHdcpCtl
const (
	HdcpCtlKeyExchange = 1 << 0
	HdcpCtlAuth        = 1 << 1
)

// RegTpiBcaps
const BcapsRepeater = 1 << 6

// RegTpiIntrSt0
const (
	TpiIntrKeyDone = 1 << 0
	TpiIntrAuthChg = 1 << 1
	TpiIntrLinkChg = 1 << 2
)

// RegHdcp2xCtrl0, RegHdcp2xCaps, RegHdcp2xIntr0
const (
	Hdcp2xCtrlEnable = 1 << 0
	Hdcp2xCtrlPoller = 1 << 1

	Hdcp2xCapsPeer = 1 << 7

	Hdcp2xIntrDone  = 1 << 0
	Hdcp2xIntrFail  = 1 << 1
	Hdcp2xIntrRcvID = 1 << 2
)

// RegEdidCtl
const (
	EdidCtlView       = 0x03
	EdidCtlViewDevcap = 0x00
	EdidCtlViewXDev   = 0x01
	EdidCtlViewEDID   = 0x02
	EdidCtlParity     = 1 << 4
	EdidCtlFetchEn    = 1 << 7
)

// RegBistCtl, RegBistIntr
const (
	BistCtlECBUS = 1 << 0
	BistCtlAV    = 1 << 1
	BistCtlImp   = 1 << 2
	BistCtlStop  = 1 << 7
)

// RegTxZoneCtl1
const (
	ZoneFixed = 0x00
	ZoneAuto  = 0x80
)

// RegCocCtl0, RegCocStat0, RegCocIntr
const (
	CocCtlReset   = 1 << 7
	CocCtlEnable  = 1 << 0
	CocStatMask   = 0x0f
	CocStatLocked = 0x0a
	CocIntrDone   = 1 << 0
)

// RegTdmCtl, RegTdmStat, RegTrxIntH
const (
	TdmCtlEnable  = 1 << 0
	TdmCtlSpeedD  = 1 << 1
	TdmStatMask   = 0x03
	TdmStatSynced = 0x03
	TrxIntHSync   = 1 << 0
	TrxIntHWait   = 1 << 1
)

// RegDiscCtl1, RegDiscStat2, RegCbusDiscIntr0
const (
	DiscCtl1Enable = 1 << 0

	RgndMask  = 0x03
	RgndOpen  = 0x00
	Rgnd2k    = 0x01
	Rgnd1k    = 0x02
	RgndShort = 0x03

	DiscRGNDReady   = 0x40
	DiscMHL12Discon = 0x20
	DiscMHL3Discon  = 0x10
	DiscNotMHLEst   = 0x08
	DiscMHLEst      = 0x04
	DiscMHL3Est     = 0x02
)

// RegCbusStatus
const CbusStatHPD = 1 << 1

// RegCbusInt0
const (
	CbusInt0CmdDone    = 1 << 0
	CbusInt0CmdNack    = 1 << 1
	CbusInt0HPDChg     = 1 << 2
	CbusInt0WriteStat  = 1 << 3
	CbusInt0MscMsg     = 1 << 4
	CbusInt0WriteBurst = 1 << 5
	CbusInt0SetInt     = 1 << 6
)

// RegCbusInt1
const (
	CbusInt1CmdAbort  = 1 << 0
	CbusInt1PeerAbort = 1 << 1
	CbusInt1DDCAbort  = 1 << 2
)

// RegMscStart
const MscStartGo = 1 << 0

// RegMdtIntr0, RegCbusXstatIntr, RegEmscIntr
const (
	MdtIntrRcvDone  = 1 << 0
	XstatIntrRcv    = 1 << 0
	EmscIntrRxReady = 1 << 0
)

// RegEmscCtl
const (
	EmscCtlEnable  = 1 << 0
	EmscCtlRxReset = 1 << 1
)

var fifoPorts = []reg{
	RegEdidFifoWrData,
	RegEdidFifoRdData,
	RegMscWbFifo,
	RegMdtRcvFifo,
	RegHdcp2xRcvIDFifo,
	RegEmscRxFifo,
	RegEmscTxFifo,
}

func init() {
	regbus.MarkPort(fifoPorts...)
}
