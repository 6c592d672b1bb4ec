package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetLogFields_Order(t *testing.T) {
	ctx := context.Background()
	ctx = WithBusinessID(ctx, "7654321")
	ctx = WithServiceName(ctx, "uploader-service")
	ctx = WithMessageID(ctx, "evt-1")

	fields := GetLogFields(ctx)
	assert.Equal(t, []interface{}{
		"message_id", "evt-1",
		"service_name", "uploader-service",
		"business_id", "7654321",
	}, fields)
}

func TestGetLogFields_Empty(t *testing.T) {
	assert.Empty(t, GetLogFields(context.Background()))
	assert.Equal(t, "", GetBusinessID(context.Background()))
}
