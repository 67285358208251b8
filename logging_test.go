package bulb

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultLogger_Levels(t *testing.T) {
	var out, errOut bytes.Buffer
	l := NewLoggerTo(&out, &errOut, "bulb", false)

	l.Debugf("hidden %d", 1)
	l.Infof("volume %d", 384)
	l.Warnf("slow")
	l.Errorf("broken")

	assert.NotContains(t, out.String(), "hidden")
	assert.Contains(t, out.String(), "[bulb] INFO: volume 384")
	assert.Contains(t, errOut.String(), "[bulb] WARN: slow")
	assert.Contains(t, errOut.String(), "[bulb] ERROR: broken")

	l.SetDebug(true)
	assert.True(t, l.DebugEnabled())
	l.Debugf("shown %d", 2)
	assert.Contains(t, out.String(), "DEBUG: shown 2")
}

func TestDefaultLogger_NoPrefix(t *testing.T) {
	var out bytes.Buffer
	l := NewLoggerTo(&out, &out, "", false)
	l.Infof("plain")
	assert.Contains(t, out.String(), "INFO: plain")
	assert.NotContains(t, out.String(), "[")
}

func TestOrNop(t *testing.T) {
	l := OrNop(nil)
	if l == nil {
		t.Fatal("OrNop returned nil")
	}
	assert.False(t, l.DebugEnabled())

	d := NewDefaultLogger("x", true)
	assert.Same(t, d, OrNop(d))
}

func TestDefaultLogger_Named(t *testing.T) {
	var out bytes.Buffer
	root := NewLoggerTo(&out, &out, "bulb", false)
	dev := root.Named("hostdev")
	dev.Infof("ready")
	assert.Contains(t, out.String(), "[bulb/hostdev] INFO: ready")

	// children share the debug switch of their root
	root.SetDebug(true)
	assert.True(t, dev.DebugEnabled())
	dev.Debugf("allocated")
	assert.Contains(t, out.String(), "[bulb/hostdev] DEBUG: allocated")

	out.Reset()
	NewLoggerTo(&out, &out, "", false).Named("gpu").Infof("x")
	assert.Contains(t, out.String(), "[gpu] INFO: x")
}

func TestComponent_NilLogger(t *testing.T) {
	l := Component(nil, "gpu")
	assert.NotNil(t, l)
	assert.False(t, l.Named("more").DebugEnabled())
}

func TestLevelString(t *testing.T) {
	assert.Equal(t, "WARN", LevelWarn.String())
	assert.Equal(t, "Level(9)", Level(9).String())
}
