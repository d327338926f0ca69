// Package domain models date-indexed raster stacks of a water body and the
// pixel-wise and point-wise analytics computed over them.
//
// # Rasters
//
// A raster frame is one time-stamped image: one or more equally sized band
// grids plus a GDAL-ordered affine geotransform:
//
//	x = A[0] + col*A[1] + row*A[2]
//	y = A[3] + col*A[4] + row*A[5]
//
// Undefined pixels are NaN in every [Grid]. Readers replace the file's nodata
// sentinel with NaN for the single-band (occurrence) path; the multi-band
// (colour) path keeps raw values and carries the sentinel on the frame so the
// enhancer can force those pixels to black.
//
// # Dates
//
// Frame dates come from the file name (see [ExtractDate]). Two patterns are
// tried in order and the first match wins, even when it is not a valid date:
//
//	YYYY[_-]MM[_-]DD   e.g. "lake_2023-07-22.tif"
//	YYYYMMDD           e.g. "S2_20230722_L2A.tif"
//
// Separator-delimited dates are preferred so unrelated 8-digit runs are only
// read as a fallback.
//
// # Occurrence statistics
//
// For an inclusive value window [lower, upper] every pixel gets:
//
//	daysInRange          number of frames whose value lies in the window
//	meanDayOfOccurrence  mean day-of-year of those frames (NaN when none)
//	dayOfMaximum         day-of-year of the largest in-window value;
//	                     the earliest frame wins ties (NaN when none)
//
// Monthly and yearly counts always use the full stack, never the frame filter
// applied to the three main grids.
//
// # Frame enhancement
//
// Each band is stretched between its 2nd and 98th percentile to 0–255. A flat
// band (p98 ≤ p2) becomes all zeros. Pale, low-saturation pixels in the
// stretched RGB image are flagged as anomalies and painted with a highlight
// colour:
//
//	min ≤ R,G,B ≤ max  and  max(R,G,B) − min(R,G,B) < spread
//
// Defaults are min=160, max=230, spread=40.
//
// # Concentration proxy
//
// The default proxy is (G/255)·factor with factor 2.0. It is a monotone
// stand-in, not a calibrated model; see [ConcentrationProxy].
//
// # Error taxonomy
//
// Per-file and per-point problems are recorded as [FileResult] and
// [PointSkip] entries in a [RunReport] and never abort a run. A missing
// dataset folder ([ErrDatasetNotFound]) or a run with zero surviving frames
// ([ErrNoFrames]) are the only fatal outcomes.
package domain
