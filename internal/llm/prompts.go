package llm

const rewritePrompt = `You are an expert search assistant.

Rewrite the user's input as a short, precise search query.
If the input is already an optimal search query, return it unchanged.

User: %s
Search query:`

const reformulatePrompt = `You are refining a search query.

Conversation so far:
%s

Compose ONE refined search query that captures all constraints implicit or explicit in the conversation. Return ONLY the query.`

const clarifyPrompt = `You are a helpful search assistant.

The items listed below were retrieved after considering the entire prior conversation with the user.

Items (id · snippet):
%s

Conversation context:
%s

Using BOTH the conversation context and the item list, do the following:
1. Ask one concise follow-up question that will help the user narrow down their search significantly.
   - The question should distinguish between the remaining items effectively.
   - The question should not repeat or be too similar to previous questions.
   - Do not recommend any specific item.
2. Provide meaningful and mutually exclusive answer choices, up to 4 choices maximum.
   - Begin each choice with a number (1. 2. 3. 4.).
   - Do not include redundant or overlapping options.

Format your output as follows:
Question: <your question>
1. <first option>
2. <second option>
(Only include as many options as are appropriate)`

const summaryPrompt = `Summarise the following %d item descriptions in bullet points (at most 40 words each).

%s

Start each bullet with the item id. Return exactly %d bullet points.`
