package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCharacterFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "characters.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadCharacters_ParsesFullConfig(t *testing.T) {
	path := writeCharacterFile(t, `
characters:
  mao:
    name: Mao
    url: https://example.com/mao/mao.model3.json
    pointer_interactive: true
    idle_motion_group: Idle
    default_emotion: neutral
    initial_x_shift: -20
    initial_y_shift: 40
    scale_hint: 0.4
    tap_motions:
      head:
        flick_head: 0.9
      body:
        tap_body: 0.6
`)

	cf, err := LoadCharacters(path)
	require.NoError(t, err)

	mc, ok := cf.Get("mao")
	require.True(t, ok)
	assert.Equal(t, "Mao", mc.Name)
	assert.Equal(t, "https://example.com/mao/mao.model3.json", mc.URL)
	assert.True(t, mc.PointerInteractive)
	assert.Equal(t, "Idle", mc.IdleMotionGroup)
	assert.Equal(t, "neutral", mc.DefaultEmotion)
	assert.Equal(t, -20.0, mc.InitialXShift)
	assert.Equal(t, 40.0, mc.InitialYShift)
	assert.Equal(t, 0.4, mc.ScaleHint)
	assert.Equal(t, 0.9, mc.TapMotions["head"]["flick_head"])
	assert.Equal(t, 0.6, mc.TapMotions["body"]["tap_body"])
}

func TestLoadCharacters_NameDefaultsToID(t *testing.T) {
	path := writeCharacterFile(t, `
characters:
  shizuku:
    url: local/shizuku/shizuku.model.json
`)

	cf, err := LoadCharacters(path)
	require.NoError(t, err)

	mc, ok := cf.Get("shizuku")
	require.True(t, ok)
	assert.Equal(t, "shizuku", mc.Name)
}

func TestLoadCharacters_MissingURLFails(t *testing.T) {
	path := writeCharacterFile(t, `
characters:
  broken:
    name: Broken
`)

	_, err := LoadCharacters(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no model url")
}

func TestLoadCharacters_MissingFileFails(t *testing.T) {
	_, err := LoadCharacters(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestCharacterFile_GetEmptyIDWithSingleCharacter(t *testing.T) {
	path := writeCharacterFile(t, `
characters:
  solo:
    url: solo.model3.json
`)

	cf, err := LoadCharacters(path)
	require.NoError(t, err)

	mc, ok := cf.Get("")
	require.True(t, ok)
	assert.Equal(t, "solo", mc.Name)
}

func TestCharacterFile_GetEmptyIDWithMultipleCharacters(t *testing.T) {
	path := writeCharacterFile(t, `
characters:
  a:
    url: a.model3.json
  b:
    url: b.model3.json
`)

	cf, err := LoadCharacters(path)
	require.NoError(t, err)

	_, ok := cf.Get("")
	assert.False(t, ok)
}

func TestCharacterFile_IDsSorted(t *testing.T) {
	path := writeCharacterFile(t, `
characters:
  zeta:
    url: z.model3.json
  alpha:
    url: a.model3.json
  mid:
    url: m.model3.json
`)

	cf, err := LoadCharacters(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"alpha", "mid", "zeta"}, cf.IDs())
}
