package gateway

import (
	"github.com/saweedkh/kiosk-backend-sub000/internal/protocol"
)

// ResultFromResponse maps a decoded terminal reply onto the uniform
// result shape. A cancel from the PIN pad is its own status, never a
// generic failure. The returned error is non nil exactly when the
// payment did not complete.
func ResultFromResponse(resp protocol.Response, amount int64) (PaymentResult, error) {
	res := PaymentResult{
		Success:         resp.Success,
		ResponseCode:    resp.Code,
		TransactionID:   resp.TransactionID,
		ReferenceNumber: resp.ReferenceNumber,
		MaskedPAN:       resp.MaskedPAN,
		Amount:          amount,
		Raw:             resp.Raw,
	}
	if !resp.Parsed {
		res.Status = StatusFailed
		res.Message = "unintelligible terminal response"
		return res, &ProtocolError{Raw: resp.Raw}
	}
	if res.TransactionID == "" {
		res.TransactionID = NewTransactionID(amount)
	}
	if resp.Success {
		res.Status = StatusSuccess
		res.Message = "payment approved"
		return res, nil
	}
	if resp.Code == protocol.CancelledCode {
		res.Status = StatusCancelled
		res.Message = protocol.ErrorMessage(resp.Code)
		return res, &UserCancelledError{}
	}
	res.Status = StatusFailed
	res.Message = protocol.ErrorMessage(resp.Code)
	return res, &DeviceDeclinedError{Code: resp.Code, Message: res.Message}
}
