package core_test

import (
	"errors"
	"fmt"
	"testing"

	"lab-booking/internal/core"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	cause := errors.New("pq: relation does not exist")
	tests := []struct {
		err  error
		want core.ErrorKind
	}{
		{nil, ""},
		{&core.ValidationError{Field: "type", Message: "is required"}, core.KindValidation},
		{&core.TenantIsolationError{RefType: core.LineTypeItem, RefIDs: []int64{3}}, core.KindTenantIsolation},
		{&core.TemporalRuleError{Rule: "past"}, core.KindTemporalRule},
		{&core.CapacityError{Limit: "cart_slots", Max: 10}, core.KindCapacity},
		{&core.AvailabilityError{RefType: core.LineTypeKit, RefID: 1}, core.KindAvailability},
		{&core.ConcurrencyError{}, core.KindConcurrency},
		{&core.ForbiddenError{Action: "cancel"}, core.KindForbidden},
		{&core.PersistenceError{Err: cause}, core.KindPersistence},
		{fmt.Errorf("checkout: %w", &core.ConcurrencyError{}), core.KindConcurrency},
		{cause, core.KindUnknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, core.KindOf(tt.err), "%v", tt.err)
	}
}

func TestErrorMessages(t *testing.T) {
	assert.Equal(t, "type: is required", (&core.ValidationError{Field: "type", Message: "is required"}).Error())
	assert.Equal(t, "insufficient stock for Microscope: 2 available",
		(&core.AvailabilityError{Name: "Microscope", Available: 2}).Error())
	assert.Equal(t, "insufficient stock for kit 7: 0 available",
		(&core.AvailabilityError{RefType: core.LineTypeKit, RefID: 7}).Error())

	pe := &core.PersistenceError{Op: "insert", Err: errors.New("password authentication failed for user app")}
	assert.NotContains(t, pe.Error(), "password")
	assert.ErrorContains(t, errors.Unwrap(pe), "password")
}
