package ledger

import "github.com/shopspring/decimal"

var decimalTenth = decimal.RequireFromString("0.1")
