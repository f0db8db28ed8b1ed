// Package domain models weather-station observations and the pure
// transformations that turn heterogeneous station exports into the canonical
// metric schema.
//
// # Data Sources
//
// Two ingestion channels feed the pipeline:
//
//	infoclimat          InfoClimat open-data API dumps (JSON). Already metric.
//	weather_underground Weather Underground personal weather station exports
//	                    (one Excel workbook per station, one sheet per day).
//
// Raw records arrive one per observation, tagged with a source tag that selects
// a [SourceTable]. Several tags may share one canonical source value: the two
// Weather Underground workbooks (tags wu_ichtegem, wu_lamadeleine) both load as
// source "weather_underground" but carry different fixed station ids.
//
// # Weather Underground Conventions
//
// Values are imperial strings with unit suffixes and non-breaking spaces:
//
//	"57.7 °F"   temperature, dew point      →  (F−32)×5/9
//	"8.1 mph"   wind speed, gust            →  mph×1.60934
//	"29.92 in"  pressure                    →  inHg×33.8639
//	"0.01 in"   precipitation rate, accum   →  in×25.4
//	"WSW"            wind direction (16-point compass, or North/East/South/West)
//
// Time is a wall-clock string ("12:04 AM") without a date. The calendar date
// lives in the sheet name or object-key segment, DDMMYY by default
// ("011024" = 1 October 2024). See [PartitionDateResolver].
//
// # InfoClimat Conventions
//
// Hourly bundles nest rows under "hourly.<station_id>" next to a "stations"
// metadata list; "_params" is a schema descriptor and is skipped. Flat exports
// carry "id_station" and "dh_utc" ("2024-10-01 00:00:00", UTC). See
// [ExpandBundles].
//
// # Null Versus Absent
//
// A canonical field is null when the channel produces the measurement but this
// record had no usable value. It is absent (missing from the document) when
// the channel never produces that category, e.g. visibility for Weather
// Underground or UV index for InfoClimat. Source tables declare absence
// explicitly so the two states never blur.
//
// # Record Hash
//
// Each observation carries a SHA-256 digest over its normalized field set,
// rounded to two decimals. Content addressing means two raw spellings of the
// same reading ("56.8°F" and 56.8) collapse to one record. See [RecordHash].
package domain
