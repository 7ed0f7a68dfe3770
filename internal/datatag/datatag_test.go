package datatag

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	in := Tag{
		Magic: Magic, DepID: 1, JobID: 42, FragID: 0, SnapTS: 1735689600,
		SrcPluginID: 3, SrcPluginVer: 1, TgtPluginID: 7, TgtPluginVer: 2,
	}
	b, err := Marshal(in)
	require.NoError(t, err)
	require.Len(t, b, Size)

	out, err := Unmarshal(b)
	require.NoError(t, err)
	require.Equal(t, in, out)
}

func TestUnmarshalRejectsBadMagic(t *testing.T) {
	b, err := Marshal(Tag{Magic: 0xdeadbeef, JobID: 1})
	require.NoError(t, err)
	_, err = Unmarshal(b)
	require.Error(t, err)
}

func TestUnmarshalRejectsShortBlock(t *testing.T) {
	_, err := Unmarshal(make([]byte, 10))
	require.Error(t, err)
}
