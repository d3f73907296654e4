package scene

import (
	"fmt"
	"math"
)

// ValidateProperties checks that p matches the shape kind requires, per
// spec.md §3's property-shapes-by-kind table.
func ValidateProperties(kind Kind, p Properties) error {
	switch kind {
	case KindCamera:
		if p.FocalLengthMM == nil || *p.FocalLengthMM <= 0 {
			return fmt.Errorf("camera requires positive focal_length_mm")
		}
		if p.SensorWidthMM == nil || *p.SensorWidthMM <= 0 {
			return fmt.Errorf("camera requires positive sensor_width_mm")
		}
		if p.ClipStart == nil || *p.ClipStart <= 0 {
			return fmt.Errorf("camera requires positive clip_start")
		}
		if p.ClipEnd == nil || *p.ClipEnd <= 0 {
			return fmt.Errorf("camera requires positive clip_end")
		}
	case KindPointLight:
		if err := validateColor(p.ColorRGB); err != nil {
			return err
		}
		if p.PowerWatts == nil || *p.PowerWatts < 0 {
			return fmt.Errorf("point_light requires non-negative power_watts")
		}
		if p.Radius == nil || *p.Radius < 0 {
			return fmt.Errorf("point_light requires non-negative radius")
		}
	case KindSunLight:
		if err := validateColor(p.ColorRGB); err != nil {
			return err
		}
		if p.Intensity == nil || *p.Intensity < 0 {
			return fmt.Errorf("sun_light requires non-negative intensity")
		}
		if p.AngleRad == nil || *p.AngleRad < 0 || *p.AngleRad > math.Pi {
			return fmt.Errorf("sun_light requires angle_rad in [0, pi]")
		}
	case KindCube, KindSphere, KindCylinder, KindAssetRef:
		// properties are empty for primitives and asset refs
	default:
		return fmt.Errorf("unknown kind %q", kind)
	}
	return nil
}

func validateColor(c *Vec3) error {
	if c == nil {
		return fmt.Errorf("color_rgb is required")
	}
	for _, v := range c {
		if v < 0 || v > 1 {
			return fmt.Errorf("color_rgb components must be in [0,1]")
		}
	}
	return nil
}

// ValidateAssetRef enforces invariant 3: asset_id non-null iff kind is asset_ref.
func ValidateAssetRef(kind Kind, assetID, assetLibrary *string) error {
	if kind == KindAssetRef {
		if assetID == nil || *assetID == "" {
			return fmt.Errorf("asset_ref requires asset_id")
		}
		if assetLibrary == nil || *assetLibrary == "" {
			return fmt.Errorf("asset_ref requires asset_library")
		}
		return nil
	}
	if assetID != nil || assetLibrary != nil {
		return fmt.Errorf("asset_id/asset_library must be null unless kind is asset_ref")
	}
	return nil
}
