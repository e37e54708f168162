package extraction

import "strings"

// Delimiter closes every prompt. Everything after its first occurrence in a
// completion is treated as model output.
const Delimiter = "<</SYS>>[/INST]"

// SchemaTemplate is the record shape the model is asked to fill in. It is
// embedded verbatim in every prompt.
const SchemaTemplate = `{
    "invoice_number": "",
    "invoice_date": "",
    "due_date": "",
    "total_amount": "",
    "vat_amount": "",
    "client": {
        "name": "",
        "vat_number": "",
        "address": {
            "street": "",
            "city": "",
            "postcode": "",
            "country": ""
        },
        "phone": "",
        "email": ""
    },
    "supplier": {
        "name": "",
        "vat_number": "",
        "address": {
            "street": "",
            "city": "",
            "postcode": "",
            "country": ""
        },
        "phone": "",
        "email": ""
    },
    "items": [
        {
            "description": "",
            "quantity": "",
            "unit_price": "",
            "total": "",
            "vat_rate": ""
        }
    ],
    "payment_details": {
        "bank_name": "",
        "iban": "",
        "swift_code": ""
    }
}`

const promptPreamble = `[INST] <<SYS>>
You are a helpful, respectful and honest assistant. Always answer as helpfully as possible, while being safe. Your answers should not include any harmful, unethical, racist, sexist, toxic, dangerous, or illegal content. Please ensure that your responses are socially unbiased and positive in nature. If a question does not make any sense, or is not factually coherent, explain why instead of answering something not correct. If you don't know the answer to a question, please don't share false information.

Based on the provided invoice text, please extract the necessary information and structure it into the following JSON format:

`

// BuildPrompt returns the instruction prompt for invoiceText. The text is
// embedded unmodified, so a Delimiter inside it is not escaped.
func BuildPrompt(invoiceText string) string {
	var b strings.Builder
	b.Grow(len(promptPreamble) + len(SchemaTemplate) + len(invoiceText) + 64)
	b.WriteString(promptPreamble)
	b.WriteString(SchemaTemplate)
	b.WriteString("\n\nInvoice Text:\n")
	b.WriteString(invoiceText)
	b.WriteString("\n")
	b.WriteString(Delimiter)
	b.WriteString("\n")
	return b.String()
}
