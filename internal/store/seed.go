package store

// seedChannels is the curated channel list inserted on first boot: mostly
// UHF GMRS/FRS channels, plus public-safety, business and weather entries,
// some of them in VHF.
var seedChannels = []Channel{
	{Frequency: 462_562_500, Label: "GMRS 1", Category: "gmrs", Mode: "NFM", Priority: 1, Enabled: true},
	{Frequency: 462_587_500, Label: "GMRS 2", Category: "gmrs", Mode: "NFM", Priority: 1, Enabled: true},
	{Frequency: 467_562_500, Label: "GMRS 8 (FRS shared)", Category: "frs", Mode: "NFM", Priority: 2, Enabled: true},
	{Frequency: 155_160_000, Label: "NOAA Weather", Category: "weather", Mode: "NFM", Priority: 0, Enabled: true},
	{Frequency: 453_000_000, Label: "Public Safety Simplex", Category: "public-safety", Mode: "NFM", Priority: 1, Enabled: true},
	{Frequency: 151_625_000, Label: "Business Itinerant", Category: "business", Mode: "NFM", Priority: 2, Enabled: true},
	{Frequency: 462_675_000, Label: "GMRS Repeater Input", Category: "gmrs", Mode: "NFM", Priority: 2, Enabled: true},
	{Frequency: 154_600_000, Label: "VHF Fire Mutual Aid", Category: "public-safety", Mode: "NFM", Priority: 0, Enabled: true},
}
