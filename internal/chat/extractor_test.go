package chat

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taboon/internal/models"
)

const confirmed = `تمام يا علي، طلبك بيكون جاهز خلال 10 دقائق 🔥
[ORDER_DATA]
{
  "customer": "علي",
  "phone": "0599123456",
  "items": "بيتزا الطابون x2",
  "total": 40,
  "orderType": "car_pickup",
  "location": "بالسيارة",
  "carInfo": "كيا بيضاء"
}
[/ORDER_DATA]`

func TestExtractWithoutBlockLeavesReplyAlone(t *testing.T) {
	orders := newFakeOrders()
	e := NewExtractor(orders, newFakeCustomers(), nil)

	reply := "أهلاً! شو حابب تطلب؟"
	got, err := e.Extract(context.Background(), reply, "fp")
	require.NoError(t, err)
	assert.Equal(t, reply, got.Reply)
	assert.Nil(t, got.OrderID)
	assert.Zero(t, orders.nextCalls)
}

func TestExtractCreatesOrder(t *testing.T) {
	orders := newFakeOrders()
	customers := newFakeCustomers()
	e := NewExtractor(orders, customers, nil)

	got, err := e.Extract(context.Background(), confirmed, "fp-1")
	require.NoError(t, err)
	require.NotNil(t, got.OrderID)
	assert.Equal(t, int64(1001), *got.OrderID)

	require.Len(t, orders.created, 1)
	o := orders.created[0]
	assert.Equal(t, "علي", o.CustomerName)
	assert.Equal(t, "0599123456", o.Phone)
	assert.Equal(t, 40.0, o.Total)
	assert.Equal(t, models.OrderTypeCarPickup, o.OrderType)
	assert.Equal(t, "كيا بيضاء", o.CarInfo)
	assert.Equal(t, "", o.Address)
	assert.Equal(t, models.OrderStatusNew, o.Status)
	assert.Equal(t, models.OrderSourceChat, o.Source)
	assert.Equal(t, "fp-1", o.Fingerprint)

	assert.NotContains(t, got.Reply, "ORDER_DATA")
	assert.True(t, strings.HasPrefix(got.Reply, "تمام يا علي"))
	assert.True(t, strings.HasSuffix(got.Reply, "\n\n📋 رقم طلبك: #1001"))

	require.Len(t, customers.patches, 1)
	patch := customers.patches[0]
	require.NotNil(t, patch.Name)
	assert.Equal(t, "علي", *patch.Name)
	assert.Nil(t, patch.Address, "keys absent from the block are not upserted")
	require.NotNil(t, patch.OrderType)
	assert.Equal(t, models.OrderTypeCarPickup, *patch.OrderType)
}

func TestExtractAppliesDefaults(t *testing.T) {
	orders := newFakeOrders()
	e := NewExtractor(orders, nil, nil)

	got, err := e.Extract(context.Background(), `ok [ORDER_DATA]{"items": "مناقيش زعتر"}[/ORDER_DATA]`, "")
	require.NoError(t, err)
	require.NotNil(t, got.OrderID)

	o := orders.created[0]
	assert.Equal(t, models.DefaultCustomerName, o.CustomerName)
	assert.Equal(t, models.DefaultChatLocation, o.Location)
	assert.Equal(t, models.OrderTypeDineIn, o.OrderType)
	assert.Zero(t, o.Total)
	assert.Empty(t, o.Fingerprint)
}

func TestExtractToleratesFencesAndRelaxedJSON(t *testing.T) {
	orders := newFakeOrders()
	e := NewExtractor(orders, nil, nil)

	reply := "تم!\n[ORDER_DATA]\n```json\n{\n  // delivery to Sawahreh\n  \"customer\": \"سارة\",\n  \"items\": [\"صواني وسط\", \"ماء كبير\"],\n  \"total\": \"43\",\n  \"orderType\": \"delivery\",\n}\n```\n[/ORDER_DATA]"
	got, err := e.Extract(context.Background(), reply, "")
	require.NoError(t, err)
	require.NotNil(t, got.OrderID)

	o := orders.created[0]
	assert.Equal(t, 43.0, o.Total)
	assert.Equal(t, models.OrderTypeDelivery, o.OrderType)
	assert.Equal(t, "صواني وسط، ماء كبير", o.Items)
	assert.Equal(t, "تم!\n\n📋 رقم طلبك: #1001", got.Reply)
}

func TestExtractRejectsUnusableBlocks(t *testing.T) {
	cases := map[string]string{
		"malformed":    `[ORDER_DATA]{"customer": "x", [/ORDER_DATA]`,
		"empty":        `[ORDER_DATA]   [/ORDER_DATA]`,
		"bad type":     `[ORDER_DATA]{"orderType": "drive_thru"}[/ORDER_DATA]`,
		"negative":     `[ORDER_DATA]{"total": -5}[/ORDER_DATA]`,
		"not a number": `[ORDER_DATA]{"total": "كثير"}[/ORDER_DATA]`,
		"array":        `[ORDER_DATA][1,2,3][/ORDER_DATA]`,
		"null":         `hi [ORDER_DATA]null[/ORDER_DATA]`,
		"string":       "[ORDER_DATA]\"x\"[/ORDER_DATA]",
		"fenced null":  "[ORDER_DATA]```json\nnull\n```[/ORDER_DATA]",
	}
	for name, reply := range cases {
		t.Run(name, func(t *testing.T) {
			orders := newFakeOrders()
			e := NewExtractor(orders, newFakeCustomers(), nil)

			got, err := e.Extract(context.Background(), reply, "fp")
			require.NoError(t, err)
			assert.Equal(t, reply, got.Reply)
			assert.Nil(t, got.OrderID)
			assert.Zero(t, orders.nextCalls)
			assert.Empty(t, orders.created)
		})
	}
}

func TestExtractReturnsIDWhenCreateFails(t *testing.T) {
	orders := newFakeOrders()
	orders.failWrite = true
	e := NewExtractor(orders, nil, nil)

	got, err := e.Extract(context.Background(), confirmed, "")
	require.NoError(t, err)
	require.NotNil(t, got.OrderID)
	assert.Contains(t, got.Reply, "#1001")
}

func TestExtractReportsSequenceFailure(t *testing.T) {
	orders := newFakeOrders()
	orders.failNext = true
	e := NewExtractor(orders, nil, nil)

	got, err := e.Extract(context.Background(), confirmed, "")
	var pe *models.PersistenceError
	assert.ErrorAs(t, err, &pe)
	assert.Equal(t, confirmed, got.Reply)
	assert.Nil(t, got.OrderID)
}

func TestParseBlockErrorsAreExtractionErrors(t *testing.T) {
	for _, raw := range []string{`{"orderType": "x"}`, `null`, `// comment only
null`} {
		_, err := parseBlock(raw)
		var ee *models.ExtractionError
		assert.ErrorAs(t, err, &ee, raw)
	}

	data, err := parseBlock("// placed by the model\n{\"customer\": \"علي\",}")
	require.NoError(t, err)
	require.NotNil(t, data.Customer)
	assert.Equal(t, "علي", *data.Customer)
}
