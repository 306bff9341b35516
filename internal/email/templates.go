package email

import (
	"fmt"
	"strings"
)

// BuildPaymentReceiptBody builds the HTML body for the payment confirmation email
func BuildPaymentReceiptBody(orderID string, total float64, receiptURL string) string {
	receiptHTML := ""
	if receiptURL != "" {
		receiptHTML = fmt.Sprintf(
			`<p style="margin: 20px 0;"><a href="%s" style="color: #667eea; font-weight: bold;">View your receipt</a></p>`,
			receiptURL,
		)
	}

	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
	<meta charset="UTF-8">
	<meta name="viewport" content="width=device-width, initial-scale=1.0">
</head>
<body style="font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px;">
	<div style="background: linear-gradient(135deg, #667eea 0%%, #764ba2 100%%); padding: 30px; border-radius: 10px 10px 0 0;">
		<h1 style="color: white; margin: 0; font-size: 24px;">Payment received</h1>
	</div>

	<div style="background: #fff; padding: 30px; border: 1px solid #eee; border-top: none; border-radius: 0 0 10px 10px;">
		<p style="margin-top: 0;">Thank you! Your payment has been confirmed.</p>

		<div style="background: #f8f9fa; padding: 15px; border-radius: 5px; margin: 20px 0;">
			<p style="margin: 0; font-size: 14px; color: #666;">Order number</p>
			<p style="margin: 5px 0 0 0; font-size: 18px; font-weight: bold; font-family: monospace;">%s</p>
		</div>

		<div style="text-align: right; padding: 20px; background: #f8f9fa; border-radius: 5px;">
			<span style="font-size: 14px; color: #666;">Amount paid</span>
			<span style="font-size: 24px; font-weight: bold; color: #667eea; margin-left: 10px;">$%s</span>
		</div>

		%s

		<hr style="border: none; border-top: 1px solid #eee; margin: 30px 0;">

		<p style="font-size: 12px; color: #999; margin-bottom: 0;">
			This email was sent automatically. If you have any questions, please contact support.
		</p>
	</div>
</body>
</html>`, orderID, formatAmount(total), receiptHTML)
}

// formatAmount formats a monetary amount with two decimals and comma separators
func formatAmount(amount float64) string {
	str := fmt.Sprintf("%.2f", amount)
	dot := strings.Index(str, ".")
	whole, frac := str[:dot], str[dot:]

	if len(whole) <= 3 {
		return whole + frac
	}

	var result strings.Builder
	remainder := len(whole) % 3
	if remainder > 0 {
		result.WriteString(whole[:remainder])
		result.WriteString(",")
	}

	for i := remainder; i < len(whole); i += 3 {
		result.WriteString(whole[i : i+3])
		if i+3 < len(whole) {
			result.WriteString(",")
		}
	}

	return result.String() + frac
}
