package event

import (
	"time"

	"transfer-lab/domain"
)

// DomainEvent is anything worth projecting onto the transfer timeline.
type DomainEvent interface {
	Transfer() domain.TransferID
}

type TransferStarted struct {
	ID          domain.TransferID
	Direction   domain.Direction
	Name        string
	Size        int64
	Connections int
	At          time.Time
}

func (e TransferStarted) Transfer() domain.TransferID {
	return e.ID
}

// PartSent reports one part acknowledged by the cluster during an upload.
// Bytes is the size of that part, Transferred the running total.
type PartSent struct {
	ID          domain.TransferID
	Bytes       int64
	Transferred int64
	Total       int64
	At          time.Time
}

func (e PartSent) Transfer() domain.TransferID {
	return e.ID
}

// PartFetched reports one part written to the local sink during a download.
type PartFetched struct {
	ID          domain.TransferID
	Bytes       int64
	Transferred int64
	Total       int64
	At          time.Time
}

func (e PartFetched) Transfer() domain.TransferID {
	return e.ID
}

type TransferCompleted struct {
	ID        domain.TransferID
	Direction domain.Direction
	Name      string
	Bytes     int64
	Duration  time.Duration
	At        time.Time
}

func (e TransferCompleted) Transfer() domain.TransferID {
	return e.ID
}

type TransferFailed struct {
	ID        domain.TransferID
	Direction domain.Direction
	Name      string
	Reason    string
	At        time.Time
}

func (e TransferFailed) Transfer() domain.TransferID {
	return e.ID
}

type MediaAttached struct {
	ID      domain.TransferID
	Channel string
	Name    string
	Size    int64
	At      time.Time
}

func (e MediaAttached) Transfer() domain.TransferID {
	return e.ID
}
