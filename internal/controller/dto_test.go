package controller

import (
	"encoding/json"
	"testing"
)

// Raw provider payload: numbers arrive as JSON numbers, the receipt as a
// string, and TransactionDate/PhoneNumber as numbers that must round-trip
// into strings without scientific notation.
const sampleCallback = `{
  "Body": {
    "stkCallback": {
      "MerchantRequestID": "29115-34620561-1",
      "CheckoutRequestID": "ws_CO_191220191020363925",
      "ResultCode": 0,
      "ResultDesc": "The service request is processed successfully.",
      "CallbackMetadata": {
        "Item": [
          {"Name": "Amount", "Value": 1100.00},
          {"Name": "MpesaReceiptNumber", "Value": "NLJ7RT61SV"},
          {"Name": "TransactionDate", "Value": 20191219102115},
          {"Name": "PhoneNumber", "Value": 254708374149}
        ]
      }
    }
  }
}`

func TestToCallbackEvent(t *testing.T) {
	var env StkCallbackEnvelope
	if err := json.Unmarshal([]byte(sampleCallback), &env); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}

	ev := env.Body.StkCallback.toCallbackEvent()
	if ev.CheckoutRequestID != "ws_CO_191220191020363925" || ev.MerchantRequestID != "29115-34620561-1" {
		t.Errorf("unexpected references %+v", ev)
	}
	if ev.ResultCode != 0 {
		t.Errorf("unexpected result code %d", ev.ResultCode)
	}
	if ev.Amount != 1100 {
		t.Errorf("expected amount 1100, got %d", ev.Amount)
	}
	if ev.ReceiptNumber != "NLJ7RT61SV" {
		t.Errorf("unexpected receipt %q", ev.ReceiptNumber)
	}
	if ev.TransactionDate != "20191219102115" {
		t.Errorf("unexpected transaction date %q", ev.TransactionDate)
	}
	if ev.PhoneNumber != "254708374149" {
		t.Errorf("unexpected phone %q", ev.PhoneNumber)
	}
}

func TestToCallbackEventWithoutMetadata(t *testing.T) {
	const failed = `{
	  "Body": {
	    "stkCallback": {
	      "MerchantRequestID": "MR1",
	      "CheckoutRequestID": "CO1",
	      "ResultCode": 1032,
	      "ResultDesc": "Request cancelled by user"
	    }
	  }
	}`
	var env StkCallbackEnvelope
	if err := json.Unmarshal([]byte(failed), &env); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}

	ev := env.Body.StkCallback.toCallbackEvent()
	if ev.ResultCode != 1032 || ev.ResultDesc != "Request cancelled by user" {
		t.Errorf("unexpected event %+v", ev)
	}
	if ev.Amount != 0 || ev.ReceiptNumber != "" {
		t.Error("failure callbacks carry no receipt metadata")
	}
}
