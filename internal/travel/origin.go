package travel

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/emersion/go-vcard"
	"github.com/spf13/afero"

	"github.com/tartampluch/go-wakeup/internal/config"
	"github.com/tartampluch/go-wakeup/internal/engine"
)

// ResolveOrigin returns the travel origin: static coordinates when both are
// set, otherwise the GEO property of the owner's vCard.
func ResolveOrigin(fsys afero.Fs, s config.TravelSettings) (*engine.Coordinates, error) {
	if s.OriginLat != nil && s.OriginLng != nil {
		return &engine.Coordinates{Lat: *s.OriginLat, Lng: *s.OriginLng}, nil
	}
	if s.OriginVCard == "" {
		return nil, errors.New(config.ErrOriginSource)
	}

	f, err := fsys.Open(s.OriginVCard)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", config.ErrVCardParse, err)
	}
	defer func() { _ = f.Close() }()

	c, err := OriginFromVCard(f)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// OriginFromVCard returns the first GEO property found in r.
// Cards that fail to decode are skipped.
func OriginFromVCard(r io.Reader) (engine.Coordinates, error) {
	dec := vcard.NewDecoder(r)
	for {
		card, err := dec.Decode()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			slog.Warn(config.ErrVCardParse,
				config.LogKeyComponent, config.CompTravel,
				config.LogKeyError, err)
			continue
		}
		if geo := card.Get(config.VCardGEO); geo != nil && geo.Value != "" {
			return ParseGeo(geo.Value)
		}
	}
	return engine.Coordinates{}, errors.New(config.ErrVCardNoGeo)
}

// ParseGeo accepts the vCard 4 URI form "geo:48.85,2.35" and the vCard 3 form "48.85;2.35".
func ParseGeo(v string) (engine.Coordinates, error) {
	v = strings.TrimSpace(v)
	sep := ";"
	if rest, ok := strings.CutPrefix(strings.ToLower(v), config.GeoURI); ok {
		v = rest
		sep = ","
		// Drop the uncertainty or CRS parameters.
		if i := strings.IndexByte(v, ';'); i >= 0 {
			v = v[:i]
		}
	}

	latStr, lngStr, ok := strings.Cut(v, sep)
	if !ok {
		return engine.Coordinates{}, fmt.Errorf("%s: %q", config.ErrGeoParse, v)
	}
	// geo: URIs may carry an altitude.
	lngStr, _, _ = strings.Cut(lngStr, ",")

	lat, err := strconv.ParseFloat(strings.TrimSpace(latStr), 64)
	if err != nil || lat < -90 || lat > 90 {
		return engine.Coordinates{}, fmt.Errorf("%s: %q", config.ErrGeoParse, v)
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(lngStr), 64)
	if err != nil || lng < -180 || lng > 180 {
		return engine.Coordinates{}, fmt.Errorf("%s: %q", config.ErrGeoParse, v)
	}
	return engine.Coordinates{Lat: lat, Lng: lng}, nil
}
