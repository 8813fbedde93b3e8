package ai

// Delimiter tokens shared between the extraction prompts and the record
// parser. The model is instructed to emit records in this exact shape; the
// parser splits on the same literals.
const (
	TupleDelimiter      = "<|>"
	RecordDelimiter     = "##"
	CompletionDelimiter = "<|COMPLETE|>"

	// GraphFieldSep packs multiple values (descriptions, source ids) into a
	// single stored text field.
	GraphFieldSep = "<SEP>"
)

// DefaultEntityTypes is the type vocabulary offered to the extraction model
// when the caller does not supply its own.
var DefaultEntityTypes = []string{
	"ORGANIZATION", "PERSON", "LOCATION", "EVENT", "CONCEPT", "PRODUCT", "TECHNOLOGY", "DATE",
}

// FailResponse is returned verbatim when retrieval finds nothing to ground an
// answer on; no generation call is made in that case.
const FailResponse = "Sorry, I'm not able to provide an answer to that question."

// ExtractEntitiesPrompt asks the model for delimiter-separated entity and
// relationship records. Arguments, in order: entity types (comma-joined),
// tuple delimiter, record delimiter, completion delimiter, input text.
const ExtractEntitiesPrompt = `-Goal-
Given a text document that is potentially relevant to this activity and a list of entity types, identify all entities of those types from the text and all relationships among the identified entities.

-Steps-
1. Identify all entities. For each identified entity, extract the following information:
- entity_name: Name of the entity, capitalized
- entity_type: One of the following types: [%[1]s]
- entity_description: Comprehensive description of the entity's attributes and activities
Format each entity as ("entity"%[2]s<entity_name>%[2]s<entity_type>%[2]s<entity_description>)

2. From the entities identified in step 1, identify all pairs of (source_entity, target_entity) that are *clearly related* to each other.
For each pair of related entities, extract the following information:
- source_entity: name of the source entity, as identified in step 1
- target_entity: name of the target entity, as identified in step 1
- relationship_description: explanation as to why you think the source entity and the target entity are related to each other
- relationship_strength: a numeric score indicating strength of the relationship between the source entity and target entity
Format each relationship as ("relationship"%[2]s<source_entity>%[2]s<target_entity>%[2]s<relationship_description>%[2]s<relationship_strength>)

3. Return output in English as a single list of all the entities and relationships identified in steps 1 and 2. Use **%[3]s** as the list delimiter.

4. When finished, output %[4]s

######################
-Example-
######################
Entity_types: [PERSON, TECHNOLOGY, ORGANIZATION]
Text:
while Alex clenched his jaw, the buzz of frustration dull against the backdrop of Taylor's authoritarian certainty. It was this competitive undercurrent that kept him alert.
######################
Output:
("entity"%[2]sALEX%[2]sPERSON%[2]sAlex is a character who experiences frustration and is observant of interpersonal dynamics.)%[3]s
("entity"%[2]sTAYLOR%[2]sPERSON%[2]sTaylor is portrayed with authoritarian certainty.)%[3]s
("relationship"%[2]sALEX%[2]sTAYLOR%[2]sAlex is affected by Taylor's authoritarian certainty and observes a competitive dynamic between them.%[2]s7)%[4]s

######################
-Real Data-
######################
Entity_types: [%[1]s]
Text:
%[5]s
######################
Output:
`

// ExtractRelationsPrompt is the second hierarchical pass: given entity names
// already found in the text, re-extract relationships only. Arguments, in
// order: entity names (comma-joined), tuple delimiter, record delimiter,
// completion delimiter, input text.
const ExtractRelationsPrompt = `-Goal-
Given a text document and a list of entities already identified in it, identify all relationships among those entities.

-Steps-
1. For each pair of (source_entity, target_entity) from the provided entity list that are *clearly related* to each other in the text, extract the following information:
- source_entity: name of the source entity, from the provided list
- target_entity: name of the target entity, from the provided list
- relationship_description: explanation as to why you think the source entity and the target entity are related to each other
- relationship_strength: a numeric score indicating strength of the relationship between the source entity and target entity
Format each relationship as ("relationship"%[2]s<source_entity>%[2]s<target_entity>%[2]s<relationship_description>%[2]s<relationship_strength>)

2. Return output in English as a single list of all relationships identified in step 1. Use **%[3]s** as the list delimiter.

3. When finished, output %[4]s

######################
-Real Data-
######################
Entities: [%[1]s]
Text:
%[5]s
######################
Output:
`

// ContinueExtractPrompt nudges the model to add records it missed; it rides on
// the running conversation history of the extraction exchange.
const ContinueExtractPrompt = `MANY entities were missed in the last extraction. Add them below using the same format:
`

// LoopExtractPrompt is the yes/no continuation question between gleaning
// rounds. Anything other than "yes" stops the loop.
const LoopExtractPrompt = `It appears some entities may have still been missed. Answer YES | NO if there are still entities that need to be added.
`

// SummarizeDescriptionsPrompt condenses the accumulated descriptions of one
// entity or relation into a single comprehensive description. Arguments:
// entity name, newline-joined description list.
const SummarizeDescriptionsPrompt = `You are a helpful assistant responsible for generating a comprehensive summary of the data provided below.
Given one entity or a pair of related entities, and a list of descriptions, all related to the same entity or pair of entities.
Please concatenate all of these into a single, comprehensive description. Make sure to include information collected from all the descriptions.
If the provided descriptions are contradictory, please resolve the contradictions and provide a single, coherent summary.
Make sure it is written in third person, and include the entity names so we have the full context.

#######
-Data-
Entities: %s
Description List: %s
#######
Output:
`

// CommunityReportPrompt generates a structured report for one community.
// The data tables are injected as fenced CSV sections. Argument: the packed
// community description.
const CommunityReportPrompt = `You are an AI assistant that helps a human analyst perform information discovery about a community of entities within a knowledge network.

# Goal
Write a comprehensive report of a community, given a list of entities that belong to the community as well as their relationships and optional associated claims. The report will be used to inform decision-makers about information associated with the community and their potential impact.

The report should include the following:
- TITLE: community's name that represents its key entities - title should be short but specific. When possible, include representative named entities in the title.
- SUMMARY: An executive summary of the community's overall structure, how its entities are related to each other, and significant information associated with its entities.
- IMPACT SEVERITY RATING: a float score between 0-10 that represents the severity of IMPACT posed by entities within the community.
- RATING EXPLANATION: Give a single sentence explanation of the IMPACT severity rating.
- DETAILED FINDINGS: A list of 5-10 key insights about the community. Each finding is a short summary plus multiple paragraphs of explanatory text grounded in the input data.

# Report Structure
Return the report as JSON with the fields title, summary, rating, rating_explanation and findings, where each finding has a summary and an explanation.

# Grounding Rules
Do not include information where the supporting evidence for it is not provided.

# Real Data
Use the following text for your answer. Do not make anything up in your answer.

%s

Output:
`

// RagResponsePrompt frames the assembled retrieval context for answer
// generation. Arguments: context data, response type.
const RagResponsePrompt = `You are a helpful assistant responding to questions about data in the tables provided.

---Goal---
Generate a response of the target length and format that responds to the user's question, summarizing all information in the input data tables appropriate for the response length and format, and incorporating any relevant general knowledge.
If you don't know the answer, just say so. Do not make anything up.
Do not include information where the supporting evidence for it is not provided.

---Target response length and format---
%[2]s

---Data tables---
%[1]s

Add sections and commentary to the response as appropriate for the length and format.
`

// NaiveRagResponsePrompt is the chunk-only variant used by the naive mode.
// Arguments: chunk content, response type.
const NaiveRagResponsePrompt = `You are a helpful assistant responding to questions about documents provided.

---Goal---
Generate a response of the target length and format that responds to the user's question, summarizing all information in the input documents appropriate for the response length and format, and incorporating any relevant general knowledge.
If you don't know the answer, just say so. Do not make anything up.
Do not include information where the supporting evidence for it is not provided.

---Target response length and format---
%[2]s

---Documents---
%[1]s

Add sections and commentary to the response as appropriate for the length and format.
`
