package timescaledb

const createStationsTableSQL = `CREATE TABLE IF NOT EXISTS gapfill_stations (
    stationname TEXT PRIMARY KEY,
    province TEXT NOT NULL DEFAULT '',
    latitude DOUBLE PRECISION NOT NULL,
    longitude DOUBLE PRECISION NOT NULL,
    altitude DOUBLE PRECISION NOT NULL,
    climate_id TEXT NOT NULL DEFAULT '',
    enabled BOOLEAN NOT NULL DEFAULT TRUE
);`

const createGapfilledTableSQL = `CREATE TABLE IF NOT EXISTS weather_gapfilled (
    bucket TIMESTAMPTZ NOT NULL,
    stationname TEXT NOT NULL,
    variable TEXT NOT NULL,
    value DOUBLE PRECISION NULL,
    estimated BOOLEAN NOT NULL DEFAULT FALSE
);`

const createGapfilledHypertableSQL = `SELECT create_hypertable('weather_gapfilled', 'bucket', if_not_exists => TRUE);`

const createGapfilledIndexSQL = `CREATE INDEX IF NOT EXISTS weather_gapfilled_stationname_bucket_idx ON weather_gapfilled (stationname, bucket);`

const deleteGapfilledWindowSQL = `DELETE FROM weather_gapfilled WHERE stationname = $1 AND bucket >= $2 AND bucket <= $3`

const bucketRangeSQL = `SELECT min(bucket) AS first, max(bucket) AS last FROM weather_1d WHERE stationname IN ?`
