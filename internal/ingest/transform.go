package ingest

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// pointsResponse is the subset of GET /points/{lat},{lon} we consume.
type pointsResponse struct {
	Properties struct {
		GridID           string `json:"gridId"`
		GridX            int    `json:"gridX"`
		GridY            int    `json:"gridY"`
		ForecastHourly   string `json:"forecastHourly"`
		ForecastGridData string `json:"forecastGridData"`
	} `json:"properties"`
}

// hourlyResponse is the subset of a forecastHourly document we consume.
type hourlyResponse struct {
	Properties struct {
		UpdateTime string `json:"updateTime"`
		Periods    []struct {
			StartTime                  string   `json:"startTime"`
			EndTime                    string   `json:"endTime"`
			Temperature                *float64 `json:"temperature"`
			TemperatureUnit            string   `json:"temperatureUnit"`
			WindSpeed                  string   `json:"windSpeed"`
			WindGust                   string   `json:"windGust"`
			WindDirection              string   `json:"windDirection"`
			ShortForecast              string   `json:"shortForecast"`
			ProbabilityOfPrecipitation struct {
				Value *float64 `json:"value"`
			} `json:"probabilityOfPrecipitation"`
			RelativeHumidity struct {
				Value *float64 `json:"value"`
			} `json:"relativeHumidity"`
		} `json:"periods"`
	} `json:"properties"`
}

// alertsResponse is the subset of GET /alerts/active we consume.
type alertsResponse struct {
	Features []struct {
		Geometry   interface{} `json:"geometry"`
		Properties struct {
			ID          string `json:"id"`
			Event       string `json:"event"`
			Severity    string `json:"severity"`
			Certainty   string `json:"certainty"`
			Urgency     string `json:"urgency"`
			Headline    string `json:"headline"`
			Description string `json:"description"`
			Instruction string `json:"instruction"`
			Effective   string `json:"effective"`
			Onset       string `json:"onset"`
			Expires     string `json:"expires"`
			Ends        string `json:"ends"`
			Status      string `json:"status"`
			MessageType string `json:"messageType"`
			AreaDesc    string `json:"areaDesc"`
		} `json:"properties"`
	} `json:"features"`
}

// noaaStationsResponse is the CDO /stations result set.
type noaaStationsResponse struct {
	Results []struct {
		ID        string   `json:"id"`
		Name      string   `json:"name"`
		Latitude  *float64 `json:"latitude"`
		Longitude *float64 `json:"longitude"`
		Elevation *float64 `json:"elevation"`
		MinDate   string   `json:"mindate"`
		MaxDate   string   `json:"maxdate"`
	} `json:"results"`
}

// noaaDataResponse is the CDO /data result set. Values arrive in tenths of
// the unit (tenths of °C, tenths of mm).
type noaaDataResponse struct {
	Results []struct {
		Date     string  `json:"date"`
		DataType string  `json:"datatype"`
		Station  string  `json:"station"`
		Value    float64 `json:"value"`
	} `json:"results"`
	Metadata struct {
		ResultSet struct {
			Count  int `json:"count"`
			Limit  int `json:"limit"`
			Offset int `json:"offset"`
		} `json:"resultset"`
	} `json:"metadata"`
}

// toCelsius converts a temperature to °C given its unit code ("F" or "C").
func toCelsius(value float64, unit string) float64 {
	if strings.EqualFold(unit, "F") {
		return (value - 32) * 5 / 9
	}
	return value
}

var windSpeedRe = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(mph|kt|km/h)\s*$`)

// parseWindSpeedMps parses NWS wind speed text like "10 mph" or
// "5 to 15 mph" into m/s. Ranged values keep the upper bound. Returns nil
// when the text carries no parseable speed.
func parseWindSpeedMps(text string) *float64 {
	m := windSpeedRe.FindStringSubmatch(strings.TrimSpace(text))
	if m == nil {
		return nil
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return nil
	}
	switch m[2] {
	case "mph":
		v *= 0.44704
	case "kt":
		v *= 0.514444
	case "km/h":
		v /= 3.6
	}
	return &v
}

var cardinalDegrees = map[string]float64{
	"N": 0, "NNE": 22.5, "NE": 45, "ENE": 67.5,
	"E": 90, "ESE": 112.5, "SE": 135, "SSE": 157.5,
	"S": 180, "SSW": 202.5, "SW": 225, "WSW": 247.5,
	"W": 270, "WNW": 292.5, "NW": 315, "NNW": 337.5,
}

// cardinalToDegrees maps a 16-wind compass direction to degrees. Returns nil
// for unknown or empty text.
func cardinalToDegrees(text string) *float64 {
	deg, ok := cardinalDegrees[strings.ToUpper(strings.TrimSpace(text))]
	if !ok {
		return nil
	}
	return &deg
}

// precipProbability converts an NWS percentage (0-100, possibly null or out
// of range) into a [0,1] probability.
func precipProbability(pct *float64) *float64 {
	if pct == nil {
		return nil
	}
	p := *pct / 100
	if p < 0 {
		p = 0
	}
	if p > 1 {
		p = 1
	}
	return &p
}

// parseInstant parses the timestamp formats the upstreams emit. Returns nil
// for empty or unparseable input.
func parseInstant(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}
