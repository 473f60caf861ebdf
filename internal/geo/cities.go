package geo

// cityCoordinates is the built-in city table. Keys are matched exactly, so
// common aliases ("NYC" and "New York") appear as separate entries.
var cityCoordinates = map[string]Coordinate{
	// United States
	"NYC":          {Lat: 40.7128, Lng: -74.0060},
	"New York":     {Lat: 40.7128, Lng: -74.0060},
	"LAX":          {Lat: 34.0522, Lng: -118.2437},
	"Los Angeles":  {Lat: 34.0522, Lng: -118.2437},
	"Chicago":      {Lat: 41.8781, Lng: -87.6298},
	"Houston":      {Lat: 29.7604, Lng: -95.3698},
	"Phoenix":      {Lat: 33.4484, Lng: -112.0740},
	"Philadelphia": {Lat: 39.9526, Lng: -75.1652},
	"San Antonio":  {Lat: 29.4241, Lng: -98.4936},
	"San Diego":    {Lat: 32.7157, Lng: -117.1611},
	"Dallas":       {Lat: 32.7767, Lng: -96.7970},
	"San Jose":     {Lat: 37.3382, Lng: -121.8863},
	"Austin":       {Lat: 30.2672, Lng: -97.7431},
	"Seattle":      {Lat: 47.6062, Lng: -122.3321},
	"Denver":       {Lat: 39.7392, Lng: -104.9903},
	"Boston":       {Lat: 42.3601, Lng: -71.0589},
	"Miami":        {Lat: 25.7617, Lng: -80.1918},
	"Atlanta":      {Lat: 33.7490, Lng: -84.3880},
	"Portland":     {Lat: 45.5152, Lng: -122.6784},
	"Las Vegas":    {Lat: 36.1699, Lng: -115.1398},
	"Detroit":      {Lat: 42.3314, Lng: -83.0458},
	"Minneapolis":  {Lat: 44.9778, Lng: -93.2650},

	// International
	"London":      {Lat: 51.5074, Lng: -0.1278},
	"Paris":       {Lat: 48.8566, Lng: 2.3522},
	"Tokyo":       {Lat: 35.6762, Lng: 139.6503},
	"Shanghai":    {Lat: 31.2304, Lng: 121.4737},
	"Shenzhen":    {Lat: 22.5431, Lng: 114.0579},
	"Singapore":   {Lat: 1.3521, Lng: 103.8198},
	"Dubai":       {Lat: 25.2048, Lng: 55.2708},
	"Sydney":      {Lat: -33.8688, Lng: 151.2093},
	"Mumbai":      {Lat: 19.0760, Lng: 72.8777},
	"Berlin":      {Lat: 52.5200, Lng: 13.4050},
	"Toronto":     {Lat: 43.6532, Lng: -79.3832},
	"Mexico City": {Lat: 19.4326, Lng: -99.1332},
	"São Paulo":   {Lat: -23.5505, Lng: -46.6333},
	"Seoul":       {Lat: 37.5665, Lng: 126.9780},
	"Amsterdam":   {Lat: 52.3676, Lng: 4.9041},
	"Hong Kong":   {Lat: 22.3193, Lng: 114.1694},
	"Frankfurt":   {Lat: 50.1109, Lng: 8.6821},
}
