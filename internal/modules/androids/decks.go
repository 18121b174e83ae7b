package androids

// The 52 card noun deck players draw their hands from. Cards are plain
// strings so clients can render them directly.
var nounCards = []string{
	"My phone",
	"A robot uprising",
	"The school cafeteria",
	"A surprise quiz",
	"My science teacher",
	"A broken elevator",
	"The last slice of pizza",
	"A talking parrot",
	"Homework over winter break",
	"A flat tire",
	"The laundry pile",
	"A garage band",
	"My little brother",
	"A vending machine",
	"The bus that never comes",
	"A haunted house",
	"Group projects",
	"A paper airplane",
	"The internet",
	"A pop song stuck in your head",
	"My grandmother's cooking",
	"A traffic jam",
	"The gym locker room",
	"A library fine",
	"An alarm clock",
	"The neighbor's dog",
	"A magic trick gone wrong",
	"Airport security",
	"A birthday party",
	"The dentist",
	"A roller coaster",
	"Leftover meatloaf",
	"A soggy sandwich",
	"The first day of school",
	"A thunderstorm",
	"Video game tutorials",
	"A lost sock",
	"The emergency broadcast system",
	"A marching band",
	"My uncle's jokes",
	"A runaway shopping cart",
	"The weather forecast",
	"A blanket fort",
	"Instant noodles",
	"A spelling bee",
	"The school mascot",
	"A squeaky door",
	"Glitter",
	"A stack of overdue bills",
	"The moon landing",
	"A substitute teacher",
	"Elevator music",
}

// The characteristic deck rounds are played against. One card is drawn at
// the start of each round and every player but the leader answers it with a
// noun card.
var characteristicCards = []string{
	"Adorable",
	"Annoying",
	"Awkward",
	"Brilliant",
	"Catastrophic",
	"Confusing",
	"Courageous",
	"Dangerous",
	"Delicious",
	"Dramatic",
	"Embarrassing",
	"Endless",
	"Exhausting",
	"Explosive",
	"Fearless",
	"Glamorous",
	"Gross",
	"Heroic",
	"Hilarious",
	"Invisible",
	"Legendary",
	"Loud",
	"Majestic",
	"Miserable",
	"Mysterious",
	"Overrated",
	"Peaceful",
	"Pointless",
	"Precious",
	"Ridiculous",
	"Scary",
	"Shiny",
	"Slippery",
	"Smelly",
	"Sneaky",
	"Spicy",
	"Suspicious",
	"Terrifying",
	"Unbelievable",
	"Unstoppable",
}
