package updater

import (
	"fmt"
	"strings"

	"golang.org/x/mod/semver"

	"github.com/jmylchreest/kontrol/internal/config"
)

// assetSuffixes lists installer suffixes per GOOS in order of preference.
var assetSuffixes = map[string][]string{
	"darwin":  {".dmg", ".app.tar.gz"},
	"linux":   {".AppImage", ".deb", ".rpm"},
	"windows": {".msi", "-setup.exe"},
}

// IsNewer reports whether latest is a higher semantic version than current.
// A leading "v" is optional and missing minor/patch components count as zero.
func IsNewer(latest, current string) (bool, error) {
	l := config.CanonicalVersion(latest)
	if !semver.IsValid(l) {
		return false, fmt.Errorf("release version %q is not a semantic version", latest)
	}
	c := config.CanonicalVersion(current)
	if !semver.IsValid(c) {
		return false, fmt.Errorf("current version %q is not a semantic version", current)
	}
	return semver.Compare(l, c) > 0, nil
}

// PickAsset returns the best installer for goos, or nil if none matches.
func PickAsset(assets []Asset, goos string) *Asset {
	for _, suffix := range assetSuffixes[goos] {
		for i := range assets {
			if strings.HasSuffix(assets[i].Name, suffix) {
				return &assets[i]
			}
		}
	}
	return nil
}
