package vnpay

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	client, err := NewClient(Config{
		TmnCode:    "TESTTMN1",
		HashSecret: "testsecret",
		BaseURL:    "https://sandbox.vnpayment.vn/paymentv2/vpcpay.html",
		ReturnURL:  "https://api.example.com/api/v1/payments/vnpay/callback",
	})
	require.NoError(t, err)
	return client
}

func TestNewClientRequiresCredentials(t *testing.T) {
	_, err := NewClient(Config{TmnCode: "TESTTMN1"})
	assert.ErrorIs(t, err, ErrMissingConfig)

	_, err = NewClient(Config{HashSecret: "secret"})
	assert.ErrorIs(t, err, ErrMissingConfig)
}

func TestBuildPaymentURL(t *testing.T) {
	client := newTestClient(t)

	created := time.Date(2026, 3, 15, 10, 30, 0, 0, time.UTC)
	paymentURL, err := client.BuildPaymentURL(PaymentRequest{
		TxnRef:    "PAY-20260315-A1B2C3D4",
		Amount:    499000,
		OrderInfo: "Payment for order ORD-20260315-A1B2C3D4",
		IPAddress: "203.0.113.7",
		CreatedAt: created,
		ExpireAt:  created.Add(15 * time.Minute),
	})
	require.NoError(t, err)

	parsed, err := url.Parse(paymentURL)
	require.NoError(t, err)
	query := parsed.Query()

	// Amount is sent in minor units
	assert.Equal(t, "49900000", query.Get("vnp_Amount"))
	assert.Equal(t, "VND", query.Get("vnp_CurrCode"))
	assert.Equal(t, "2.1.0", query.Get("vnp_Version"))
	assert.Equal(t, "pay", query.Get("vnp_Command"))
	assert.Equal(t, "TESTTMN1", query.Get("vnp_TmnCode"))
	assert.Equal(t, "PAY-20260315-A1B2C3D4", query.Get("vnp_TxnRef"))
	assert.Equal(t, "vn", query.Get("vnp_Locale"))

	// Timestamps are formatted in GMT+7: 10:30 UTC is 17:30 ICT
	assert.Equal(t, "20260315173000", query.Get("vnp_CreateDate"))
	assert.Equal(t, "20260315174500", query.Get("vnp_ExpireDate"))

	// The signature covers every parameter except the hash itself
	hash := query.Get("vnp_SecureHash")
	require.NotEmpty(t, hash)

	keys := make([]string, 0, len(query))
	for k := range query {
		if k == "vnp_SecureHash" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, url.QueryEscape(k)+"="+url.QueryEscape(query.Get(k)))
	}

	mac := hmac.New(sha512.New, []byte("testsecret"))
	mac.Write([]byte(strings.Join(parts, "&")))
	assert.Equal(t, hex.EncodeToString(mac.Sum(nil)), hash)
}

func TestBuildPaymentURLRejectsInvalidInput(t *testing.T) {
	client := newTestClient(t)

	_, err := client.BuildPaymentURL(PaymentRequest{Amount: 1000})
	assert.Error(t, err)

	_, err = client.BuildPaymentURL(PaymentRequest{TxnRef: "PAY-1", Amount: 0})
	assert.Error(t, err)

	_, err = client.BuildPaymentURL(PaymentRequest{TxnRef: "PAY-1", Amount: -50})
	assert.Error(t, err)
}

// signedCallbackQuery builds a raw query string signed the way the gateway does
func signedCallbackQuery(secret string, params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+url.QueryEscape(params[k]))
	}
	signData := strings.Join(parts, "&")

	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write([]byte(signData))
	return signData + "&vnp_SecureHash=" + hex.EncodeToString(mac.Sum(nil))
}

func TestParseCallbackRoundTrip(t *testing.T) {
	client := newTestClient(t)

	rawQuery := signedCallbackQuery("testsecret", map[string]string{
		"vnp_TxnRef":            "PAY-20260315-A1B2C3D4",
		"vnp_Amount":            "49900000",
		"vnp_ResponseCode":      "00",
		"vnp_TransactionStatus": "00",
		"vnp_TransactionNo":     "14422574",
		"vnp_BankCode":          "NCB",
		"vnp_CardType":          "ATM",
		"vnp_PayDate":           "20260315174210",
		"vnp_OrderInfo":         "Payment for order ORD-20260315-A1B2C3D4",
	})

	result, err := client.ParseCallback(rawQuery)
	require.NoError(t, err)

	assert.True(t, result.IsValid)
	assert.True(t, result.IsSuccess())
	assert.Equal(t, "PAY-20260315-A1B2C3D4", result.TxnRef)
	assert.Equal(t, 499000.0, result.Amount)
	assert.Equal(t, "14422574", result.TransactionNo)
	assert.Equal(t, "NCB", result.BankCode)
	assert.Equal(t, "ATM", result.CardType)
}

func TestParseCallbackTamperedAmount(t *testing.T) {
	client := newTestClient(t)

	rawQuery := signedCallbackQuery("testsecret", map[string]string{
		"vnp_TxnRef":            "PAY-20260315-A1B2C3D4",
		"vnp_Amount":            "49900000",
		"vnp_ResponseCode":      "00",
		"vnp_TransactionStatus": "00",
	})
	tampered := strings.Replace(rawQuery, "49900000", "100", 1)

	result, err := client.ParseCallback(tampered)
	require.NoError(t, err)
	assert.False(t, result.IsValid)
	assert.False(t, result.IsSuccess())
}

func TestParseCallbackWrongSecret(t *testing.T) {
	client := newTestClient(t)

	rawQuery := signedCallbackQuery("othersecret", map[string]string{
		"vnp_TxnRef":       "PAY-20260315-A1B2C3D4",
		"vnp_Amount":       "49900000",
		"vnp_ResponseCode": "00",
	})

	result, err := client.ParseCallback(rawQuery)
	require.NoError(t, err)
	assert.False(t, result.IsValid)
}

func TestParseCallbackFailedTransaction(t *testing.T) {
	client := newTestClient(t)

	rawQuery := signedCallbackQuery("testsecret", map[string]string{
		"vnp_TxnRef":            "PAY-20260315-A1B2C3D4",
		"vnp_Amount":            "49900000",
		"vnp_ResponseCode":      "24",
		"vnp_TransactionStatus": "02",
	})

	result, err := client.ParseCallback(rawQuery)
	require.NoError(t, err)
	assert.True(t, result.IsValid)
	assert.False(t, result.IsSuccess())
}

func TestParseCallbackIgnoresHashType(t *testing.T) {
	client := newTestClient(t)

	// vnp_SecureHashType travels with the callback but is excluded from
	// the signed payload.
	rawQuery := signedCallbackQuery("testsecret", map[string]string{
		"vnp_TxnRef":            "PAY-20260315-A1B2C3D4",
		"vnp_Amount":            "49900000",
		"vnp_ResponseCode":      "00",
		"vnp_TransactionStatus": "00",
	}) + "&vnp_SecureHashType=HMACSHA512"

	result, err := client.ParseCallback(rawQuery)
	require.NoError(t, err)
	assert.True(t, result.IsValid)
}

func TestParseCallbackEmptyQuery(t *testing.T) {
	client := newTestClient(t)

	_, err := client.ParseCallback("")
	assert.ErrorIs(t, err, ErrEmptyCallback)
}

func TestResponseDescription(t *testing.T) {
	assert.Equal(t, "Transaction successful", ResponseDescription("00"))
	assert.Equal(t, "Transaction cancelled by customer", ResponseDescription("24"))
	assert.Equal(t, "Insufficient account balance", ResponseDescription("51"))
	assert.Equal(t, "Transaction failed", ResponseDescription("99"))
}
