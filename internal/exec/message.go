package exec

import (
	"errors"
	"fmt"
)

// Msg is a message passed between layers.
type Msg int

const (
	MsgReqMoreData Msg = iota
	MsgRecvSeedG
	MsgRecvSeedH
	MsgRecvAddrScheme
)

func (m Msg) String() string {
	switch m {
	case MsgReqMoreData:
		return "REQ_MORE_DATA"
	case MsgRecvSeedG:
		return "RECV_SEED_G"
	case MsgRecvSeedH:
		return "RECV_SEED_H"
	case MsgRecvAddrScheme:
		return "RECV_ADDR_SCH"
	default:
		return fmt.Sprintf("msg(%d)", int(m))
	}
}

const (
	ReasonBadTiming      = "bad timing"
	ReasonInvalidMessage = "invalid message"
	ReasonNoMoreData     = "no more data sources"
)

// RejectedError is returned by a layer that refuses a message.
type RejectedError struct {
	Msg    Msg
	Reason string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("%s rejected: %s", e.Msg, e.Reason)
}

func Reject(msg Msg, reason string) error {
	return &RejectedError{Msg: msg, Reason: reason}
}

func rejectedFor(err error, reason string) bool {
	var rej *RejectedError
	return errors.As(err, &rej) && rej.Reason == reason
}

// IsBadTiming reports a rejection caused by the receiver being busy or in a
// transitional state. Callers polling a pipeline can ignore it.
func IsBadTiming(err error) bool { return rejectedFor(err, ReasonBadTiming) }

func IsInvalidMessage(err error) bool { return rejectedFor(err, ReasonInvalidMessage) }

func IsNoMoreData(err error) bool { return rejectedFor(err, ReasonNoMoreData) }
