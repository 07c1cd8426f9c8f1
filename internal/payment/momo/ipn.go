package momo

import (
	"context"
	"strconv"

	"github.com/ariefcatur/go-tour-booking/internal/apperr"
	"github.com/ariefcatur/go-tour-booking/internal/orders"
	"github.com/ariefcatur/go-tour-booking/internal/payment"
	"github.com/google/uuid"
)

// IPN is the body MoMo posts to ipnUrl.
type IPN struct {
	PartnerCode  string `json:"partnerCode"`
	OrderID      string `json:"orderId"`
	RequestID    string `json:"requestId"`
	Amount       int64  `json:"amount"`
	OrderInfo    string `json:"orderInfo"`
	OrderType    string `json:"orderType"`
	TransID      int64  `json:"transId"`
	ResultCode   int    `json:"resultCode"`
	Message      string `json:"message"`
	PayType      string `json:"payType"`
	ResponseTime int64  `json:"responseTime"`
	ExtraData    string `json:"extraData"`
	Signature    string `json:"signature"`
}

// Validate checks shape only; the signature is checked by VerifyIPN.
func (n IPN) Validate() error {
	switch {
	case n.PartnerCode == "":
		return apperr.Validation("INVALID_IPN", "partnerCode is required")
	case n.OrderID == "":
		return apperr.Validation("INVALID_IPN", "orderId is required")
	case n.RequestID == "":
		return apperr.Validation("INVALID_IPN", "requestId is required")
	case n.Amount <= 0:
		return apperr.Validation("INVALID_IPN", "amount must be positive")
	case n.Signature == "":
		return apperr.Validation("INVALID_IPN", "signature is required")
	}
	return nil
}

func (c *Client) SignIPN(n IPN) string {
	raw := "accessKey=" + c.cfg.AccessKey +
		"&amount=" + strconv.FormatInt(n.Amount, 10) +
		"&extraData=" + n.ExtraData +
		"&message=" + n.Message +
		"&orderId=" + n.OrderID +
		"&orderInfo=" + n.OrderInfo +
		"&orderType=" + n.OrderType +
		"&partnerCode=" + n.PartnerCode +
		"&payType=" + n.PayType +
		"&requestId=" + n.RequestID +
		"&responseTime=" + strconv.FormatInt(n.ResponseTime, 10) +
		"&resultCode=" + strconv.Itoa(n.ResultCode) +
		"&transId=" + strconv.FormatInt(n.TransID, 10)
	return payment.HMACSHA256Hex(c.cfg.SecretKey, raw)
}

func (c *Client) VerifyIPN(n IPN) (payment.Verification, error) {
	if err := n.Validate(); err != nil {
		return payment.Verification{}, err
	}
	if n.PartnerCode != c.cfg.PartnerCode {
		return payment.Verification{}, apperr.Signature("unexpected partnerCode")
	}
	if !payment.SignatureEqual(c.SignIPN(n), n.Signature) {
		return payment.Verification{}, apperr.Signature("momo ipn signature mismatch")
	}
	v := payment.Verification{
		Valid:      true,
		Success:    n.ResultCode == ResultSuccess,
		OrderID:    orders.OrderIDFromRef(n.OrderID),
		OrderRef:   n.OrderID,
		ResultCode: strconv.Itoa(n.ResultCode),
		Message:    n.Message,
		Amount:     n.Amount,
	}
	if n.TransID != 0 {
		v.TransactionID = strconv.FormatInt(n.TransID, 10)
	}
	return v, nil
}

type queryRequest struct {
	PartnerCode string `json:"partnerCode"`
	RequestID   string `json:"requestId"`
	OrderID     string `json:"orderId"`
	Lang        string `json:"lang"`
	Signature   string `json:"signature"`
}

type queryResponse struct {
	PartnerCode  string `json:"partnerCode"`
	OrderID      string `json:"orderId"`
	RequestID    string `json:"requestId"`
	Amount       int64  `json:"amount"`
	TransID      int64  `json:"transId"`
	ResultCode   int    `json:"resultCode"`
	Message      string `json:"message"`
	PayType      string `json:"payType"`
	ResponseTime int64  `json:"responseTime"`
}

// QueryStatus asks MoMo for the state of ref (the orderId MoMo knows).
func (c *Client) QueryStatus(ctx context.Context, ref string) (payment.Status, error) {
	ctx, span := c.tracer.Start(ctx, "momo.QueryStatus")
	defer span.End()

	body := queryRequest{
		PartnerCode: c.cfg.PartnerCode,
		RequestID:   uuid.NewString(),
		OrderID:     ref,
		Lang:        c.cfg.Lang,
	}
	body.Signature = payment.HMACSHA256Hex(c.cfg.SecretKey,
		"accessKey="+c.cfg.AccessKey+
			"&orderId="+body.OrderID+
			"&partnerCode="+body.PartnerCode+
			"&requestId="+body.RequestID)

	var out queryResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&out).
		SetError(&out).
		Post(c.cfg.Endpoint + queryPath)
	if err != nil {
		span.RecordError(err)
		return payment.Status{}, apperr.Wrap(apperr.KindExternalGateway, "MOMO_UNAVAILABLE", err, "momo query failed")
	}
	if resp.IsError() && out.ResultCode == ResultSuccess {
		return payment.Status{}, apperr.Gateway("MOMO_HTTP_"+strconv.Itoa(resp.StatusCode()), "momo http "+resp.Status())
	}

	st := payment.Status{
		Ref:        ref,
		Paid:       out.ResultCode == ResultSuccess,
		ResultCode: strconv.Itoa(out.ResultCode),
		Message:    out.Message,
		Amount:     out.Amount,
	}
	if out.TransID != 0 {
		st.TransactionID = strconv.FormatInt(out.TransID, 10)
	}
	return st, nil
}
