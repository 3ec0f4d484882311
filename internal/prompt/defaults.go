package prompt

const defaultQAGeneration = `Create {num_pairs} question-answer pairs from the text below.
The questions must be answerable from the text alone and cover its most important facts.
Answers should be complete sentences.

Text:
{text}

Return ONLY a JSON array in this format:
[
  {{"question": "Question 1?", "answer": "Answer 1."}},
  {{"question": "Question 2?", "answer": "Answer 2."}}
]`

const defaultCoTGeneration = `Create {num_pairs} complex reasoning examples from the text below.
Each example needs a question that requires several steps to answer, the step-by-step
reasoning, and the final answer.

Text:
{text}

Return ONLY a JSON array in this format:
[
  {{"question": "Question?", "reasoning": "Step 1: ... Step 2: ...", "answer": "Final answer."}}
]`

const defaultQARating = `Rate each question-answer pair on a scale of 1-10 for each of:
- accuracy: is the answer factually correct
- relevance: does the pair cover important content
- clarity: is the language clear and unambiguous
- usefulness: is the pair valuable for training a model

Also give combined_score, the overall 1-10 score for the pair.

Pairs:
{pairs}

Return ONLY a JSON array with one object per pair, in the same order:
[
  {{"accuracy": 8, "relevance": 7, "clarity": 9, "usefulness": 8, "combined_score": 8}}
]`

const defaultToolQueries = `Based on the following document context, generate {num_queries} questions that would require external tools to answer completely.

Context:
{context}

Generate questions that MUST use external tools because they ask for:
1. Recent research papers or academic studies (needs arxiv_search)
2. Current market data, news, or real-time information (needs duckduckgo_search)
3. Comparative analysis with external sources
4. Latest developments or trends not in the document

Examples:
- "What recent academic papers discuss [topic from context]?"
- "What is the current market cap of [company mentioned]?"
- "How do recent studies compare to the findings in this document?"

Return ONLY a JSON array of {num_queries} questions:
["question 1", "question 2", "question 3"]`

const defaultSearchTerms = `Extract the most relevant search terms from this question for {tool_name}:

Question: {query}

Return only the search terms that would be most effective for {search_kind}.
Keep it concise (2-5 key terms).`

const defaultArxivResult = `Generate realistic arXiv search results for query: "{query}"

Context: {context}...

Generate 2-3 realistic academic paper results with:
- Paper titles
- Authors
- Brief abstracts (1-2 sentences each)
- arXiv IDs (format: 2024.XXXX)

Make them relevant to the context and search query. Format as a realistic search result.`

const defaultWebResult = `Generate realistic web search results for query: "{query}"

Context: {context}...

Generate 2-3 realistic web search results with:
- Page titles
- Brief descriptions/snippets
- Make them relevant to current market/industry information

Format as realistic search results.`

const defaultToolAnswer = `You are an AI assistant that just received search results. Generate a comprehensive answer using both the search results and document context.

User Question: {query}

Search Results: {tool_result}

Document Context: {context}...

Generate a helpful response that:
1. References the search results naturally
2. Connects findings to the document context
3. Provides a complete answer
4. Is conversational and informative

Keep response focused and under 200 words.`

// Defaults 内置模板
func Defaults() map[string]string {
	return map[string]string{
		QAGeneration:  defaultQAGeneration,
		CoTGeneration: defaultCoTGeneration,
		QARating:      defaultQARating,
		ToolQueries:   defaultToolQueries,
		SearchTerms:   defaultSearchTerms,
		ArxivResult:   defaultArxivResult,
		WebResult:     defaultWebResult,
		ToolAnswer:    defaultToolAnswer,
	}
}
