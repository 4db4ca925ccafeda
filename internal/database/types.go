package database

import "time"

// DailyAggregate is one row of the weather_1d continuous aggregate. Temperatures
// are in °F and rain in inches; a NULL aggregate is a day without readings.
type DailyAggregate struct {
	Bucket      time.Time `gorm:"column:bucket"`
	StationName string    `gorm:"column:stationname"`
	MaxOutTemp  *float64  `gorm:"column:max_outtemp"`
	MinOutTemp  *float64  `gorm:"column:min_outtemp"`
	OutTemp     *float64  `gorm:"column:outtemp"`
	PeriodRain  *float64  `gorm:"column:period_rain"`
}

// TableName implements the Tabler interface for the DailyAggregate struct
func (DailyAggregate) TableName() string {
	return "weather_1d"
}
