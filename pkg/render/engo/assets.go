// pkg/render/engo/assets.go
package engo

import (
	"bytes"
	"fmt"
	"image/color"

	"github.com/EngoEngine/engo"
	"github.com/EngoEngine/engo/common"
	"golang.org/x/image/font/gofont/goregular"
)

// fontURL names the embedded Go font in engo's file store
const fontURL = "gravitybeats/goregular.ttf"

// AssetManager loads the fonts the HUD draws with
type AssetManager struct {
	loaded bool
}

// NewAssetManager creates a new asset manager
func NewAssetManager() *AssetManager {
	return &AssetManager{}
}

// LoadAssets registers the embedded font with engo. Call it from Preload.
func (am *AssetManager) LoadAssets() error {
	if am.loaded {
		return nil
	}
	if err := engo.Files.LoadReaderData(fontURL, bytes.NewReader(goregular.TTF)); err != nil {
		return fmt.Errorf("failed to load font: %w", err)
	}
	am.loaded = true
	return nil
}

// Font returns the HUD font at size points
func (am *AssetManager) Font(size float64, fg color.Color) (*common.Font, error) {
	if !am.loaded {
		return nil, fmt.Errorf("assets not loaded")
	}
	font := &common.Font{URL: fontURL, FG: fg, Size: size}
	if err := font.CreatePreloaded(); err != nil {
		return nil, fmt.Errorf("failed to create font: %w", err)
	}
	return font, nil
}
