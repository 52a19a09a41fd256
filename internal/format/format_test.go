package format

import (
	"testing"
	"time"

	"crm-api/internal/domain"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatFileSize(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0 B"},
		{-5, "0 B"},
		{512, "512 B"},
		{1023, "1023 B"},
		{1024, "1 KB"},
		{1536, "1.5 KB"},
		{1048576, "1 MB"},
		{1572864, "1.5 MB"},
		{5 * 1024 * 1024 * 1024, "5 GB"},
		{2 * 1024 * 1024 * 1024 * 1024 * 1024, "2048 TB"},
		{1126, "1.1 KB"},
		{1048570, "1023.99 KB"},
		{1048575, "1 MB"},
		{1073741823, "1 GB"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatFileSize(tt.in), "bytes=%d", tt.in)
	}
}

func TestFormatPhoneNumber(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"11987654321", "(11) 98765-4321"},
		{"(11) 98765-4321", "(11) 98765-4321"},
		{"1133224455", "(11) 3322-4455"},
		{"987654321", "987654321"},
		{"+55 11 98765-4321", "+55 11 98765-4321"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatPhoneNumber(tt.in), "in=%q", tt.in)
	}
}

func TestNormalizePhoneE164(t *testing.T) {
	got, err := NormalizePhoneE164("(11) 98765-4321", "")
	require.NoError(t, err)
	assert.Equal(t, "+5511987654321", got)

	got, err = NormalizePhoneE164("+55 11 98765-4321", "US")
	require.NoError(t, err)
	assert.Equal(t, "+5511987654321", got)

	_, err = NormalizePhoneE164("123", "BR")
	assert.ErrorIs(t, err, ErrInvalidPhone)

	_, err = NormalizePhoneE164("not a phone", "BR")
	assert.ErrorIs(t, err, ErrInvalidPhone)
}

func TestFormatCurrency(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"0", "R$ 0,00"},
		{"999", "R$ 999,00"},
		{"1234.56", "R$ 1.234,56"},
		{"1234567.891", "R$ 1.234.567,89"},
		{"-1234.5", "-R$ 1.234,50"},
		{"100000", "R$ 100.000,00"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatCurrency(decimal.RequireFromString(tt.in)), "in=%s", tt.in)
	}
}

func TestFormatPercentage(t *testing.T) {
	assert.Equal(t, "12,5%", FormatPercentage(decimal.RequireFromString("12.5")))
	assert.Equal(t, "10%", FormatPercentage(decimal.NewFromInt(10)))
	assert.Equal(t, "33,33%", FormatPercentage(decimal.RequireFromString("33.333")))
	assert.Equal(t, "0%", FormatPercentage(decimal.Zero))
}

func TestFormatDate(t *testing.T) {
	ts := time.Date(2024, time.March, 5, 9, 7, 0, 0, Location)
	assert.Equal(t, "05/03/2024", FormatDate(ts))
	assert.Equal(t, "05/03/2024 09:07", FormatDateTime(ts))
	assert.Equal(t, "", FormatDate(time.Time{}))
	assert.Equal(t, "", FormatDateTime(time.Time{}))
}

func TestFormatDate_ConvertsToDisplayZone(t *testing.T) {
	if Location == time.UTC {
		t.Skip("display zone unavailable")
	}
	// São Paulo is UTC-3 (no DST since 2019)
	ts := time.Date(2024, time.June, 1, 1, 30, 0, 0, time.UTC)
	assert.Equal(t, "31/05/2024", FormatDate(ts))
	assert.Equal(t, "31/05/2024 22:30", FormatDateTime(ts))
}

func TestTaxIDMasks(t *testing.T) {
	assert.Equal(t, "111.444.777-35", FormatCPF("11144477735"))
	assert.Equal(t, "123", FormatCPF("123"))
	assert.Equal(t, "11.222.333/0001-81", FormatCNPJ("11222333000181"))
	assert.Equal(t, "1122", FormatCNPJ("1122"))
}

func TestDigits(t *testing.T) {
	assert.Equal(t, "11144477735", Digits("111.444.777-35"))
	assert.Equal(t, "", Digits("abc"))
}

func TestDisplay(t *testing.T) {
	data := map[string]any{
		"name":                "ACME",
		"value":               float64(1234.56),
		"probability":         "12.5",
		"phone":               "11987654321",
		"cnpj":                "11222333000181",
		"expected_close_date": "2024-03-05",
		"closed_at":           "2024-03-05T12:00:00Z",
		"size":                float64(1536),
		"notes_value":         true,
	}

	got := Display(domain.EntityDeal, data)
	assert.Equal(t, "R$ 1.234,56", got["value"])
	assert.Equal(t, "12,5%", got["probability"])
	assert.Equal(t, "(11) 98765-4321", got["phone"])
	assert.Equal(t, "11.222.333/0001-81", got["cnpj"])
	assert.Equal(t, "05/03/2024", got["expected_close_date"])
	assert.NotEmpty(t, got["closed_at"])
	assert.NotContains(t, got, "name")
	assert.NotContains(t, got, "notes_value")
	// size is only a file size on DriveFile
	assert.NotContains(t, got, "size")

	files := Display(domain.EntityDriveFile, map[string]any{"size": float64(1536)})
	assert.Equal(t, "1.5 KB", files["size"])
}
