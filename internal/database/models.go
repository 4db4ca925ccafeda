package database

import (
	"time"
)

// GapfillStation holds the metadata of a station taking part in gap filling.
type GapfillStation struct {
	StationName string  `gorm:"primaryKey;column:stationname"`
	Province    string  `gorm:"column:province"`
	Latitude    float64 `gorm:"column:latitude;not null"`
	Longitude   float64 `gorm:"column:longitude;not null"`
	Altitude    float64 `gorm:"column:altitude;not null"`
	ClimateID   string  `gorm:"column:climate_id"`
	Enabled     bool    `gorm:"column:enabled;default:true"`
}

// TableName specifies the table name for GapfillStation
func (GapfillStation) TableName() string {
	return "gapfill_stations"
}

// FilledValue is one row of the gap-filled output table.
type FilledValue struct {
	Bucket      time.Time `gorm:"column:bucket"`
	StationName string    `gorm:"column:stationname"`
	Variable    string    `gorm:"column:variable"`
	Value       *float64  `gorm:"column:value"`
	Estimated   bool      `gorm:"column:estimated"`
}

// TableName specifies the table name for FilledValue
func (FilledValue) TableName() string {
	return "weather_gapfilled"
}
