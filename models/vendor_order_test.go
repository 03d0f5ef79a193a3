package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVendorOrderTableName(t *testing.T) {
	suborder := VendorOrder{}
	assert.Equal(t, "vendor_orders", suborder.TableName(), "Table name should be 'vendor_orders'")
}

func TestSuborderCanTransition(t *testing.T) {
	tests := []struct {
		name string
		from string
		to   string
		want bool
	}{
		{"pending to packed", SuborderPending, SuborderPacked, true},
		{"pending to cancelled", SuborderPending, SuborderCancelled, true},
		{"packed to delivery assigned", SuborderPacked, SuborderDeliveryAssigned, true},
		{"packed to cancelled", SuborderPacked, SuborderCancelled, true},
		{"delivery assigned to out for delivery", SuborderDeliveryAssigned, SuborderOutForDelivery, true},
		{"out for delivery to delivered", SuborderOutForDelivery, SuborderDelivered, true},
		{"pending cannot skip to delivery assigned", SuborderPending, SuborderDeliveryAssigned, false},
		{"delivery assigned cannot cancel", SuborderDeliveryAssigned, SuborderCancelled, false},
		{"out for delivery cannot cancel", SuborderOutForDelivery, SuborderCancelled, false},
		{"delivered is terminal", SuborderDelivered, SuborderOutForDelivery, false},
		{"cancelled is terminal", SuborderCancelled, SuborderPending, false},
		{"no backwards moves", SuborderPacked, SuborderPending, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			suborder := VendorOrder{Status: tt.from}
			assert.Equal(t, tt.want, suborder.CanTransition(tt.to))
		})
	}
}

func TestSuborderCancellable(t *testing.T) {
	tests := []struct {
		status string
		want   bool
	}{
		{SuborderPending, true},
		{SuborderPacked, true},
		{SuborderDeliveryAssigned, false},
		{SuborderOutForDelivery, false},
		{SuborderDelivered, false},
		{SuborderCancelled, false},
	}

	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			suborder := VendorOrder{Status: tt.status}
			assert.Equal(t, tt.want, suborder.Cancellable())
		})
	}
}
