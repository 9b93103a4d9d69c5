package attribution

import "github.com/aqwatch/air-quality-aggregation/internal/airquality"

// DefaultCatalog returns the fixed set of data sources this deployment
// knows how to attribute. TolNet is catalog-only: it has no adapter yet
// but its measurements may appear in downstream products that still
// need citation.
func DefaultCatalog() []airquality.DataSource {
	return []airquality.DataSource{
		{
			Key:        "TEMPO",
			Name:       "NASA TEMPO Mission",
			Kind:       airquality.KindSatellite,
			URL:        "https://tempo.si.edu/",
			Citation:   "NASA Tropospheric Emissions: Monitoring of Pollution (TEMPO)",
			License:    "Public Domain",
			Parameters: []string{"NO2", "O3", "HCHO", "CHOCHO", "SO2", "Aerosols"},
			Coverage:   "North America, hourly daytime measurements",
		},
		{
			Key:        "OpenAQ",
			Name:       "OpenAQ",
			Kind:       airquality.KindSensorNetwork,
			URL:        "https://openaq.org",
			Citation:   "OpenAQ: Open Air Quality Data",
			License:    "CC BY 4.0",
			Parameters: []string{"PM2.5", "PM10", "O3", "NO2", "SO2", "CO"},
			Coverage:   "Global, thousands of monitoring stations",
		},
		{
			Key:        "AirNow",
			Name:       "EPA AirNow",
			Kind:       airquality.KindGroundStation,
			URL:        "https://www.airnow.gov/",
			Citation:   "U.S. EPA AirNow Program",
			License:    "Public Domain",
			Parameters: []string{"O3", "PM2.5", "PM10", "AQI"},
			Coverage:   "United States, real-time and forecast",
		},
		{
			Key:        "PurpleAir",
			Name:       "PurpleAir",
			Kind:       airquality.KindSensorNetwork,
			URL:        "https://www2.purpleair.com/",
			Citation:   "PurpleAir: Community Air Quality Monitoring",
			License:    "Varies by sensor owner",
			Parameters: []string{"PM2.5", "PM10"},
			Coverage:   "Global, high-density in urban areas",
		},
		{
			Key:        "Pandora",
			Name:       "NASA Pandora Project",
			Kind:       airquality.KindGroundStation,
			URL:        "https://pandora.gsfc.nasa.gov/",
			Citation:   "NASA Pandora Project, Goddard Space Flight Center",
			License:    "Public Domain",
			Parameters: []string{"NO2", "O3", "HCHO", "SO2", "AOD"},
			Coverage:   "Global network, ~100 sites",
		},
		{
			Key:        "OpenWeather",
			Name:       "OpenWeatherMap",
			Kind:       airquality.KindWeather,
			URL:        "https://openweathermap.org/",
			Citation:   "OpenWeatherMap Weather Data",
			License:    "ODbL (Open Database License)",
			Parameters: []string{"Temperature", "Humidity", "Wind", "Pressure", "Clouds"},
			Coverage:   "Global",
		},
		{
			Key:        "TolNet",
			Name:       "TOLNet",
			Kind:       airquality.KindGroundStation,
			URL:        "https://www-air.larc.nasa.gov/missions/TOLNet/",
			Citation:   "NASA Tropospheric Ozone Lidar Network (TOLNet)",
			License:    "Public Domain",
			Parameters: []string{"O3 vertical profiles"},
			Coverage:   "North America, ~10 sites",
		},
	}
}
