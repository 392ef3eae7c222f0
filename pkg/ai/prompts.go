package ai

// Prompt templates used across the retrieval and extraction pipelines.
// Wording is policy: callers rely on the structured-output schemas, not on
// any particular phrasing of the model's free text.

const (
	// PromptDecideTools asks whether a query needs external capabilities
	// rather than knowledge-base retrieval.
	PromptDecideTools = `You are a routing assistant. Decide whether answering the user's question requires calling external tools (web search, weather lookup, calculator, fetching a URL, current time) instead of searching a private knowledge base.

Question: %s

Answer with the structured field only.`

	// PromptGradeDocuments asks for a relevance verdict on retrieved context.
	PromptGradeDocuments = `You are grading retrieved documents for relevance.

Question: %s

Documents:
%s

Are these documents relevant enough to answer the question? Answer with the structured field only.`

	// PromptRewriteQuery asks for a more specific restatement of a query
	// whose retrieval results were judged irrelevant.
	PromptRewriteQuery = `The search query below returned irrelevant results. Rewrite it to be more specific and clear, keeping the original language of the query. Return only the rewritten query, nothing else.

Query: %s`

	// PromptAnswerWithContext grounds the final answer in retrieved documents.
	PromptAnswerWithContext = `Answer the user's question using only the reference documents below. If the documents do not contain the answer, say so. Answer in the language of the question.

Reference documents:
%s

Question: %s`

	// PromptExtractEntities asks for the entities present in one text chunk.
	PromptExtractEntities = `Extract the named entities from the text below. For each entity give its name, a type (PERSON, ORGANIZATION, CONCEPT, PRODUCT, LOCATION or EVENT), a one-sentence description, and a confidence between 0 and 1. Only list entities that actually occur in the text.

Text:
%s`

	// PromptExtractRelations asks for relations among a fixed entity set.
	// Source and target must be chosen from the provided names; anything
	// else is discarded by the caller.
	PromptExtractRelations = `The following entities were found in the text below: %s

List the relationships between these entities that the text states or strongly implies. For each relationship give source and target (exactly as named above), a short relation label, a one-sentence description, a confidence between 0 and 1, and the text fragment supporting it. Do not invent entities that are not in the list.

Text:
%s`

	// PromptKeyEntities asks which entities in retrieved documents matter
	// for a query, for graph-augmented answering.
	PromptKeyEntities = `Given the question and the document excerpts below, name the 3 to 5 entities most relevant to answering the question. Use the entity names as they appear in the text.

Question: %s

Excerpts:
%s`

	// PromptGraphFusionAnswer fuses document and graph context. Document
	// content wins over graph inference when they disagree.
	PromptGraphFusionAnswer = `Answer the user's question using the reference documents and the knowledge-graph context below. Prefer the documents when the two sources conflict; the graph is supporting evidence, not ground truth. Answer in the language of the question.

Reference documents:
%s

Knowledge graph:
%s

Question: %s`
)
