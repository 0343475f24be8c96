package punctenc

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	var master MasterKey
	for i := range master {
		master[i] = byte(i)
	}
	var tag Tag
	for i := range tag {
		tag[i] = byte(200 - i)
	}

	ct := Encrypt(master, tag, 424242)

	pk := NewPuncturedKey(InitialKeyShare(master), nil)
	ix, ok := pk.Decrypt(ct)
	require.True(t, ok)
	require.Equal(t, uint64(424242), ix)
}

func TestDecryptFailsForPuncturedTag(t *testing.T) {
	var master MasterKey
	for i := range master {
		master[i] = byte(i + 5)
	}
	var tag Tag
	for i := range tag {
		tag[i] = byte(i * 3)
	}

	ct := Encrypt(master, tag, 7)

	share := IncPuncture(tag)
	pk := NewPuncturedKey(InitialKeyShare(master), []KeyShare{share})

	_, ok := pk.Decrypt(ct)
	require.False(t, ok)
}

func TestDecryptSucceedsForUnrelatedTagDespitePuncture(t *testing.T) {
	var master MasterKey
	for i := range master {
		master[i] = byte(i + 9)
	}
	var tagA, tagB Tag
	for i := range tagA {
		tagA[i] = byte(i)
		tagB[i] = byte(255 - i)
	}

	ctB := Encrypt(master, tagB, 99)

	pk := NewPuncturedKey(InitialKeyShare(master), []KeyShare{IncPuncture(tagA)})

	ix, ok := pk.Decrypt(ctB)
	require.True(t, ok)
	require.Equal(t, uint64(99), ix)
}
