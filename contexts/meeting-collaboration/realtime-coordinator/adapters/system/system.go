package system

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Clock struct{}

func (Clock) Now() time.Time {
	return time.Now().UTC()
}

type UUIDGenerator struct{}

func (UUIDGenerator) NewID(_ context.Context) (string, error) {
	return uuid.NewString(), nil
}
