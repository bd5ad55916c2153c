package logger

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestBufferWraps(t *testing.T) {
	b := NewBuffer(4)
	log := logrus.New()
	log.AddHook(b)
	log.SetLevel(logrus.DebugLevel)

	for i := 0; i < 10; i++ {
		log.Infof("entry %d", i)
	}

	require.Equal(t, 10, b.Len())
	entries := b.Entries()
	require.Len(t, entries, 4)
	require.Equal(t, "entry 6", entries[0].Message)
	require.Equal(t, "entry 9", entries[3].Message)
	require.Equal(t, 6, entries[0].ID)
}

func TestBufferRendersFields(t *testing.T) {
	b := NewBuffer(2)
	log := logrus.New()
	log.AddHook(b)

	log.WithFields(logrus.Fields{"trial": "t1", "iter": 3}).Info("reported")

	entries := b.Entries()
	require.Len(t, entries, 1)
	require.Equal(t, `reported  iter="3" trial="t1"`, entries[0].Message)
}

func TestContextCarriesFields(t *testing.T) {
	parent := NewContext("experiment", "exp-1")
	child := parent.With("trial", "t-2")

	entry := child.Logger()
	require.Equal(t, "exp-1", entry.Data["experiment"])
	require.Equal(t, "t-2", entry.Data["trial"])

	// The parent must not see the child's fields.
	require.NotContains(t, parent.Logger().Data, "trial")
}
