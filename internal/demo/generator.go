package demo

import (
	"math"
	"math/rand"
	"time"
)

// Sale is one order line of the demo dataset.
type Sale struct {
	OrderID   int64     `parquet:"order_id"`
	OrderedAt time.Time `parquet:"ordered_at,timestamp"`
	Region    string    `parquet:"region"`
	Country   string    `parquet:"country"`
	Product   string    `parquet:"product"`
	Category  string    `parquet:"category"`
	Channel   string    `parquet:"channel"`
	Units     int64     `parquet:"units"`
	UnitPrice float64   `parquet:"unit_price"`
	Revenue   float64   `parquet:"revenue"`
	Discount  *float64  `parquet:"discount,optional"`
	Returned  bool      `parquet:"returned"`
}

type product struct {
	name     string
	category string
	price    float64
}

var (
	regions = []struct {
		name      string
		countries []string
	}{
		{"eu", []string{"DE", "FR", "GB", "ES"}},
		{"us", []string{"US"}},
		{"apac", []string{"JP", "IN", "AU"}},
		{"latam", []string{"BR", "MX"}},
	}
	products = []product{
		{"laptop", "hardware", 1200},
		{"monitor", "hardware", 280},
		{"keyboard", "accessories", 65},
		{"mouse", "accessories", 30},
		{"headset", "accessories", 95},
		{"support plan", "services", 450},
		{"cloud credits", "services", 150},
	}
	channels = []string{"online", "retail", "partner"}
)

type Generator struct {
	rnd      *rand.Rand
	start    time.Time
	days     int
	sequence int64
}

func NewGenerator(seed int64, start time.Time, days int) *Generator {
	if days <= 0 {
		days = 1
	}
	return &Generator{rnd: rand.New(rand.NewSource(seed)), start: start.UTC(), days: days}
}

func (g *Generator) Next() Sale {
	g.sequence++
	region := regions[g.weightedRegion()]
	item := products[g.rnd.Intn(len(products))]
	units := int64(1 + g.rnd.Intn(8))
	unitPrice := round2(item.price * (0.9 + g.rnd.Float64()*0.2))
	revenue := float64(units) * unitPrice

	var discount *float64
	if g.rnd.Intn(100) < 30 {
		d := round2(0.05 + g.rnd.Float64()*0.25)
		discount = &d
		revenue *= 1 - d
	}

	offset := time.Duration(g.rnd.Int63n(int64(g.days) * int64(24*time.Hour)))
	return Sale{
		OrderID:   g.sequence,
		OrderedAt: g.start.Add(offset).Truncate(time.Second),
		Region:    region.name,
		Country:   region.countries[g.rnd.Intn(len(region.countries))],
		Product:   item.name,
		Category:  item.category,
		Channel:   channels[g.rnd.Intn(len(channels))],
		Units:     units,
		UnitPrice: unitPrice,
		Revenue:   round2(revenue),
		Discount:  discount,
		Returned:  g.rnd.Intn(100) < 4,
	}
}

func (g *Generator) Generate(n int) []Sale {
	out := make([]Sale, n)
	for i := range out {
		out[i] = g.Next()
	}
	return out
}

// weightedRegion skews volume toward us and eu so group-by answers have a
// clear leader.
func (g *Generator) weightedRegion() int {
	p := g.rnd.Intn(100)
	switch {
	case p < 40:
		return 1
	case p < 75:
		return 0
	case p < 92:
		return 2
	default:
		return 3
	}
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}
