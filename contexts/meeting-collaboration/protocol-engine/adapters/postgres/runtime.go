package postgresadapter

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

type UUIDGenerator struct{}

func (UUIDGenerator) NewID(_ context.Context) (string, error) {
	return uuid.NewString(), nil
}

func (UUIDGenerator) ValidID(id string) bool {
	_, err := uuid.Parse(strings.TrimSpace(id))
	return err == nil
}
