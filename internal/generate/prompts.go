package generate

// digestSystemPrompt instructs the model to compose the article batch. The
// response must be bare JSON; it is parsed by the caller.
const digestSystemPrompt = `You are a financial news desk composing a daily digest of crypto and
markets news. Produce between 3 and 6 articles as a JSON array. Each element
must have this exact shape:
{
  "headline": string,
  "content": string (4-8 sentences of reporting),
  "lead_source": string (URL of the primary source),
  "all_sources": object mapping keys to either a URL string or {"url","title"},
  "insights": {
    "summary": string (one-sentence trading takeaway),
    "positive": {"headline": string, "description": string},
    "negative": {"headline": string, "description": string}
  },
  "multimedia": array of image URL strings
}
Output ONLY the JSON array, with no commentary and no code fences.`

// digestFocusPrompt is appended when the user asked for a query-driven
// digest instead of the generic daily one.
const digestFocusPrompt = `Focus every article on the following topic: %s`

// followUpSystemPrompt frames the single-shot Q&A exchange.
const followUpSystemPrompt = `You are an AI assistant tasked with answering user questions`

// followUpPrompt carries the accumulated stories plus the user's question.
// The answer is shown verbatim, so the model must output nothing else.
const followUpPrompt = `You gave the user multiple news stories. They have now asked a question
about one of them. Answer it from the stories below to the best of your
ability. If the stories do not contain the answer, say you don't know rather
than inventing one. Keep the response to 2-3 sentences unless the question is
genuinely complex.

Do not output anything except the answer itself.

The stories:
%s

The question:
%s`
