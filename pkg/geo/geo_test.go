package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/punch-attendance-api/pkg/errors"
)

func TestPointValidateBounds(t *testing.T) {
	require.NoError(t, Point{Latitude: 90, Longitude: 180}.Validate())
	require.NoError(t, Point{Latitude: -90, Longitude: -180}.Validate())

	err := Point{Latitude: 91, Longitude: 0}.Validate()
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	assert.Equal(t, "latitude", appErr.Field)

	err = Point{Latitude: 0, Longitude: 181}.Validate()
	require.Error(t, err)
	assert.Equal(t, "longitude", appErrors.FromError(err).Field)
}

func TestDistance(t *testing.T) {
	site := Point{Latitude: 12.9, Longitude: 77.6}
	assert.InDelta(t, 0, Distance(site, site), 1e-9)

	// one degree of latitude is roughly 111.2 km
	d := Distance(Point{Latitude: 0, Longitude: 0}, Point{Latitude: 1, Longitude: 0})
	assert.InDelta(t, 111195, d, 10)

	assert.InDelta(t, Distance(site, Point{Latitude: 12.91, Longitude: 77.61}), Distance(Point{Latitude: 12.91, Longitude: 77.61}, site), 1e-6)
}
