package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeFrameMessage(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantErr   bool
		wantImage bool
		wantFPS   bool
		fps       float64
	}{
		{name: "Image and FPS", input: `{"image":"QUJD","fps":12}`, wantImage: true, wantFPS: true, fps: 12},
		{name: "Telemetry only", input: `{"fps":0}`, wantFPS: true, fps: 0},
		{name: "Empty object", input: `{}`},
		{name: "Empty image", input: `{"image":""}`},
		{name: "Unknown keys", input: `{"foo":"bar","fps":24.5}`, wantFPS: true, fps: 24.5},
		{name: "Invalid JSON", input: `{"image":`, wantErr: true},
		{name: "Not an object", input: `42`, wantErr: true},
		{name: "Non-numeric fps", input: `{"fps":"12"}`},
		{name: "Non-numeric fps keeps image", input: `{"image":"QUJD","fps":"12"}`, wantImage: true},
		{name: "Null fps", input: `{"fps":null}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := DecodeFrameMessage([]byte(tt.input))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantImage, msg.HasImage())
			assert.Equal(t, tt.wantFPS, msg.HasFPS())
			if tt.wantFPS {
				assert.Equal(t, tt.fps, *msg.FPS)
			}
		})
	}
}
