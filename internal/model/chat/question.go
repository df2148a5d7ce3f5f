package chat

// Question is one step of the fixed payment-safety questionnaire.
type Question struct {
	Index  int    `json:"index"`
	ID     string `json:"id"`
	Prompt string `json:"prompt"`
	Topic  string `json:"topic"`
}

// QuestionCount is the length of the fixed questionnaire.
const QuestionCount = 4

// Later questions assume the payment scenario established by earlier ones,
// so the order is significant and must not change.
var questions = []Question{
	{
		Index:  0,
		ID:     "payment_recipient",
		Prompt: "Who are you making this payment to? Please provide the name of the person, organization, or company.",
		Topic:  "who you are paying",
	},
	{
		Index:  1,
		ID:     "payment_purpose",
		Prompt: "What is the purpose of this payment? Please describe what you are paying for (service, product, investment, etc.)",
		Topic:  "what you are paying for",
	},
	{
		Index:  2,
		ID:     "instruction_source",
		Prompt: "Where did you get the payment link or payment instructions from? Please share the source (email, website, text message, social media post, etc.)",
		Topic:  "where you got the payment link from",
	},
	{
		Index:  3,
		ID:     "payment_platform",
		Prompt: "Please provide the website URL or platform where you are making this payment, or describe how you are accessing the payment page.",
		Topic:  "the website or platform you are using",
	},
}

// Catalog returns the four questions in order.
func Catalog() []Question {
	return append([]Question(nil), questions...)
}

// QuestionAt looks up a question by its 0-based index.
func QuestionAt(index int) (Question, bool) {
	if index < 0 || index >= len(questions) {
		return Question{}, false
	}
	return questions[index], true
}
