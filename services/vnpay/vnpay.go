package vnpay

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

var (
	ErrMissingConfig = errors.New("vnpay terminal code and hash secret are required")
	ErrEmptyCallback = errors.New("empty callback query string")
)

// VNPay expects timestamps in GMT+7 regardless of server timezone
var gatewayLocation = time.FixedZone("ICT", 7*60*60)

const timeFormat = "20060102150405"

// Config holds VNPay gateway credentials and endpoints
type Config struct {
	TmnCode    string
	HashSecret string
	BaseURL    string
	ReturnURL  string
}

// Client builds signed payment URLs and validates gateway callbacks
type Client struct {
	config Config
}

// NewClient creates a new VNPay client
func NewClient(config Config) (*Client, error) {
	if config.TmnCode == "" || config.HashSecret == "" {
		return nil, ErrMissingConfig
	}
	return &Client{config: config}, nil
}

// PaymentRequest describes a payment to redirect the user to the gateway for
type PaymentRequest struct {
	TxnRef    string // merchant transaction reference (payment number)
	Amount    float64
	OrderInfo string
	IPAddress string
	CreatedAt time.Time
	ExpireAt  time.Time
	Locale    string // defaults to "vn"
	BankCode  string // optional, preselects a bank on the gateway
}

// BuildPaymentURL constructs the signed redirect URL for the gateway.
// The signature is HMAC-SHA512 over the sorted, URL-encoded parameter
// string, appended as vnp_SecureHash.
func (c *Client) BuildPaymentURL(req PaymentRequest) (string, error) {
	if req.TxnRef == "" {
		return "", errors.New("transaction reference is required")
	}
	if req.Amount <= 0 {
		return "", fmt.Errorf("invalid payment amount: %f", req.Amount)
	}

	locale := req.Locale
	if locale == "" {
		locale = "vn"
	}

	params := map[string]string{
		"vnp_Version":    "2.1.0",
		"vnp_Command":    "pay",
		"vnp_TmnCode":    c.config.TmnCode,
		"vnp_Amount":     strconv.FormatInt(int64(math.Round(req.Amount*100)), 10),
		"vnp_CurrCode":   "VND",
		"vnp_TxnRef":     req.TxnRef,
		"vnp_OrderInfo":  req.OrderInfo,
		"vnp_OrderType":  "other",
		"vnp_Locale":     locale,
		"vnp_ReturnUrl":  c.config.ReturnURL,
		"vnp_IpAddr":     req.IPAddress,
		"vnp_CreateDate": req.CreatedAt.In(gatewayLocation).Format(timeFormat),
		"vnp_ExpireDate": req.ExpireAt.In(gatewayLocation).Format(timeFormat),
	}
	if req.BankCode != "" {
		params["vnp_BankCode"] = req.BankCode
	}

	keys := make([]string, 0, len(params))
	for k, v := range params {
		if v == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var query strings.Builder
	for _, k := range keys {
		query.WriteString(url.QueryEscape(k))
		query.WriteString("=")
		query.WriteString(url.QueryEscape(params[k]))
		query.WriteString("&")
	}

	signData := strings.TrimSuffix(query.String(), "&")
	secureHash := c.sign(signData)

	return c.config.BaseURL + "?" + query.String() + "vnp_SecureHash=" + secureHash, nil
}

// CallbackResult holds the parsed and verified gateway callback parameters
type CallbackResult struct {
	IsValid           bool
	TxnRef            string
	TransactionNo     string
	Amount            float64
	ResponseCode      string
	TransactionStatus string
	BankCode          string
	BankTranNo        string
	CardType          string
	PayDate           string
	OrderInfo         string
}

// IsSuccess reports whether the gateway confirmed the payment. Both the
// response code and the transaction status must be "00" and the signature
// must verify.
func (r *CallbackResult) IsSuccess() bool {
	return r.IsValid && r.ResponseCode == "00" && r.TransactionStatus == "00"
}

// ParseCallback verifies and decodes the raw query string the gateway sends
// back. Signature verification runs over the still-encoded parameter values,
// sorted by key, with vnp_SecureHash and vnp_SecureHashType removed.
func (c *Client) ParseCallback(rawQuery string) (*CallbackResult, error) {
	rawQuery = strings.TrimPrefix(rawQuery, "?")
	if rawQuery == "" {
		return nil, ErrEmptyCallback
	}

	encoded := make(map[string]string)
	decoded := make(map[string]string)
	for _, pair := range strings.Split(rawQuery, "&") {
		if pair == "" {
			continue
		}
		k, v, _ := strings.Cut(pair, "=")
		key, err := url.QueryUnescape(k)
		if err != nil {
			return nil, fmt.Errorf("malformed callback parameter %q: %w", k, err)
		}
		val, err := url.QueryUnescape(v)
		if err != nil {
			return nil, fmt.Errorf("malformed callback value for %q: %w", key, err)
		}
		encoded[key] = v
		decoded[key] = val
	}

	receivedHash := decoded["vnp_SecureHash"]

	keys := make([]string, 0, len(encoded))
	for k := range encoded {
		if k == "vnp_SecureHash" || k == "vnp_SecureHashType" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+encoded[k])
	}
	signData := strings.Join(parts, "&")

	result := &CallbackResult{
		IsValid:           receivedHash != "" && strings.EqualFold(c.sign(signData), receivedHash),
		TxnRef:            decoded["vnp_TxnRef"],
		TransactionNo:     decoded["vnp_TransactionNo"],
		ResponseCode:      decoded["vnp_ResponseCode"],
		TransactionStatus: decoded["vnp_TransactionStatus"],
		BankCode:          decoded["vnp_BankCode"],
		BankTranNo:        decoded["vnp_BankTranNo"],
		CardType:          decoded["vnp_CardType"],
		PayDate:           decoded["vnp_PayDate"],
		OrderInfo:         decoded["vnp_OrderInfo"],
	}

	if raw := decoded["vnp_Amount"]; raw != "" {
		cents, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid vnp_Amount %q: %w", raw, err)
		}
		result.Amount = float64(cents) / 100
	}

	return result, nil
}

func (c *Client) sign(data string) string {
	mac := hmac.New(sha512.New, []byte(c.config.HashSecret))
	mac.Write([]byte(data))
	return hex.EncodeToString(mac.Sum(nil))
}

// ResponseDescription maps a vnp_ResponseCode to a human-readable reason
func ResponseDescription(code string) string {
	switch code {
	case "00":
		return "Transaction successful"
	case "07":
		return "Money deducted, transaction suspected of fraud"
	case "09":
		return "Card or account not registered for Internet Banking"
	case "10":
		return "Card or account verification failed more than 3 times"
	case "11":
		return "Payment window expired"
	case "12":
		return "Card or account is locked"
	case "13":
		return "Incorrect OTP entered"
	case "24":
		return "Transaction cancelled by customer"
	case "51":
		return "Insufficient account balance"
	case "65":
		return "Daily transaction limit exceeded"
	case "75":
		return "Payment bank under maintenance"
	case "79":
		return "Payment password entered incorrectly too many times"
	default:
		return "Transaction failed"
	}
}
