package domain

type MovementType string

const (
	MovementTransferOut      MovementType = "transfer_out"
	MovementTransferIn       MovementType = "transfer_in"
	MovementPOReceipt        MovementType = "po_receipt"
	MovementOtherReceipt     MovementType = "other_receipt"
	MovementWriteOff         MovementType = "write_off"
	MovementOpnameAdjustment MovementType = "opname_adjustment"
)

func (m MovementType) Valid() bool {
	switch m {
	case MovementTransferOut, MovementTransferIn, MovementPOReceipt,
		MovementOtherReceipt, MovementWriteOff, MovementOpnameAdjustment:
		return true
	}
	return false
}

// Outbound reports whether the movement always draws stock down.
func (m MovementType) Outbound() bool {
	return m == MovementTransferOut || m == MovementWriteOff
}

type TransferStatus string

const (
	TransferDraft     TransferStatus = "draft"
	TransferSent      TransferStatus = "sent"
	TransferReceived  TransferStatus = "received"
	TransferCancelled TransferStatus = "cancelled"
)

type TransferAction string

const (
	TransferActionSend    TransferAction = "send"
	TransferActionReceive TransferAction = "receive"
	TransferActionCancel  TransferAction = "cancel"
)

var transferTransitions = map[TransferStatus]map[TransferAction]TransferStatus{
	TransferDraft: {
		TransferActionSend:   TransferSent,
		TransferActionCancel: TransferCancelled,
	},
	TransferSent: {
		TransferActionReceive: TransferReceived,
	},
}

func (s TransferStatus) Next(action TransferAction) (TransferStatus, bool) {
	next, ok := transferTransitions[s][action]
	return next, ok
}

func (s TransferStatus) Valid() bool {
	switch s {
	case TransferDraft, TransferSent, TransferReceived, TransferCancelled:
		return true
	}
	return false
}

func (s TransferStatus) Terminal() bool {
	return len(transferTransitions[s]) == 0
}

type POStatus string

const (
	PODraft             POStatus = "draft"
	POOrdered           POStatus = "ordered"
	POPartiallyReceived POStatus = "partially_received"
	POCompleted         POStatus = "completed"
	POCancelled         POStatus = "cancelled"
)

type POAction string

const (
	POActionOrder   POAction = "order"
	POActionReceive POAction = "receive"
	POActionCancel  POAction = "cancel"
)

// Receiving can land in either partially_received or completed, so the
// table records the partial outcome and ReceiveOutcome settles the rest.
var poTransitions = map[POStatus]map[POAction]POStatus{
	PODraft: {
		POActionOrder:   POOrdered,
		POActionReceive: POPartiallyReceived,
		POActionCancel:  POCancelled,
	},
	POOrdered: {
		POActionReceive: POPartiallyReceived,
		POActionCancel:  POCancelled,
	},
	POPartiallyReceived: {
		POActionReceive: POPartiallyReceived,
	},
}

func (s POStatus) Next(action POAction) (POStatus, bool) {
	next, ok := poTransitions[s][action]
	return next, ok
}

func (s POStatus) Valid() bool {
	switch s {
	case PODraft, POOrdered, POPartiallyReceived, POCompleted, POCancelled:
		return true
	}
	return false
}

func (s POStatus) Terminal() bool {
	return len(poTransitions[s]) == 0
}

// ReceiveOutcome returns the status a purchase order moves to after a
// receipt, given whether every line is now fully received.
func ReceiveOutcome(fullyReceived bool) POStatus {
	if fullyReceived {
		return POCompleted
	}
	return POPartiallyReceived
}

type OpnameStatus string

const (
	OpnameCounting  OpnameStatus = "counting"
	OpnameCompleted OpnameStatus = "completed"
)

type OpnameAction string

const (
	OpnameActionCount    OpnameAction = "count"
	OpnameActionFinalize OpnameAction = "finalize"
)

var opnameTransitions = map[OpnameStatus]map[OpnameAction]OpnameStatus{
	OpnameCounting: {
		OpnameActionCount:    OpnameCounting,
		OpnameActionFinalize: OpnameCompleted,
	},
}

func (s OpnameStatus) Next(action OpnameAction) (OpnameStatus, bool) {
	next, ok := opnameTransitions[s][action]
	return next, ok
}

func (s OpnameStatus) Valid() bool {
	return s == OpnameCounting || s == OpnameCompleted
}

type AdjustmentKind string

const (
	AdjustmentWriteOff       AdjustmentKind = "write_off"
	AdjustmentOtherReceiving AdjustmentKind = "other_receiving"
)

func (k AdjustmentKind) MovementType() MovementType {
	if k == AdjustmentWriteOff {
		return MovementWriteOff
	}
	return MovementOtherReceipt
}

func (k AdjustmentKind) NumberPrefix() string {
	if k == AdjustmentWriteOff {
		return "WO"
	}
	return "RCV"
}

const (
	RoleAdmin = "admin"
	RoleStaff = "staff"
)
