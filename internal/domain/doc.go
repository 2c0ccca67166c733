// Package domain models fields, crop profiles, weather snapshots and the
// recommendations derived from them.
//
// # Weather Input
//
// Snapshots arrive as JSON tagged with the farm, its owner, the farm's soil
// type and a granularity:
//
//	CURRENT  one point, instantaneous temperature / rain / wind
//	HOURLY   hourly points with ET0 and soil moisture (3 to 9 cm)
//	DAILY    daily points with temperature max/min, rain sum and max wind
//
// Forecast points use Open-Meteo variable names (temperature_2m, rain_sum,
// et0_fao_evapotranspiration, ...). Missing numeric values are zero. When an
// hourly point has no precipitation value its rain value is used instead.
//
// # Growth Stages
//
// A planted field moves SEEDLING -> YOUNG -> MATURE -> READY based on calendar
// days since planting and the crop's day thresholds. Stage names may also be
// given as ordinals "0".."3"; an empty stage is treated as YOUNG and an
// unrecognised one as MATURE.
//
// # Recommendation Lanes
//
// FROST_ALERT, HEAT_ALERT, STORM_ALERT, SAFETY_ALERT and IRRIGATE_NOW are
// delivered on the alert lane (push plus email, acknowledgement tracked).
// Everything else, including unknown types, uses the recommendation lane.
package domain
